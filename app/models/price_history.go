package models

import (
	"time"
)

const (
	PriceChangeTypeAutomation    = "automation"
	PriceChangeTypeManual        = "manual"
	PriceChangeTypeCouponApplied = "coupon_applied"
)

const (
	ActorTypeSystem = "system"
	ActorTypeAdmin  = "admin"
	ActorTypeUser   = "user"
)

// PriceHistory is the immutable audit record of one price transition.
// Rows are append-only: no update or delete path exists anywhere in the
// codebase, and the repository deliberately exposes none.
type PriceHistory struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PlanID         uint      `gorm:"not null;index:idx_price_histories_plan_created,priority:1" json:"plan_id"`
	OldPrice       float64   `gorm:"type:decimal(12,2);not null" json:"old_price"`
	NewPrice       float64   `gorm:"type:decimal(12,2);not null" json:"new_price"`
	ChangePercent  float64   `gorm:"type:decimal(8,4);not null" json:"change_percent"`
	Currency       string    `gorm:"type:varchar(3);not null" json:"currency"`
	ChangeType     string    `gorm:"type:varchar(20);not null;index" json:"change_type"`
	AppliedRules   string    `gorm:"type:text" json:"applied_rules"`    // JSON array of applied rule snapshots
	MarketSnapshot string    `gorm:"type:text" json:"market_snapshot"`  // JSON snapshot of the market resolution
	ActorType      string    `gorm:"type:varchar(10);not null;default:'system'" json:"actor_type"`
	ActorID        uint      `gorm:"default:0" json:"actor_id"`
	BatchID        string    `gorm:"type:varchar(36);default:'';index" json:"batch_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_price_histories_plan_created,priority:2" json:"created_at"`
}

// ChangePercentFor computes the relative change between two prices. A zero
// old price yields 0 so the caller never divides by zero.
func ChangePercentFor(oldPrice, newPrice float64) float64 {
	if oldPrice == 0 {
		return 0
	}
	return (newPrice - oldPrice) / oldPrice * 100
}
