package models

import (
	"strings"
	"time"
)

const (
	CurrencyINR = "INR"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

// Plan represents a sellable pricing tier whose effective price is managed
// by the automation engine.
type Plan struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Name              string     `gorm:"size:255;not null" json:"name"`
	Slug              string     `gorm:"size:255;not null;uniqueIndex" json:"slug"`
	CategoryID        uint       `gorm:"index" json:"category_id"`
	Currency          string     `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	BasePrice         float64    `gorm:"type:decimal(12,2);not null" json:"base_price"`
	CurrentPrice      float64    `gorm:"type:decimal(12,2);not null" json:"current_price"`
	TaxPercentage     float64    `gorm:"type:decimal(5,2);not null;default:0" json:"tax_percentage"`
	AutomationEnabled bool       `gorm:"default:false;index" json:"automation_enabled"`
	MinPrice          float64    `gorm:"type:decimal(12,2);default:0" json:"min_price"`
	MaxPrice          float64    `gorm:"type:decimal(12,2);default:0" json:"max_price"`
	RoundingIncrement float64    `gorm:"type:decimal(8,2);default:0" json:"rounding_increment"`
	LastPriceUpdate   *time.Time `gorm:"type:timestamp;default:null" json:"last_price_update,omitempty"`
	PriceUpdateCount  uint       `gorm:"default:0" json:"price_update_count"`
	LockVersion       uint       `gorm:"not null;default:0" json:"lock_version"`
	IsActive          bool       `gorm:"default:true;index" json:"is_active"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasBounds reports whether a min/max corridor is configured for the plan.
// A zero value means the corresponding bound is unset.
func (p *Plan) HasBounds() bool {
	return p.MinPrice > 0 || p.MaxPrice > 0
}

// EffectiveIncrement returns the rounding increment that applies to this
// plan. An explicit increment on the plan wins, otherwise the currency
// default is used (10 for INR, 1 for everything else).
func (p *Plan) EffectiveIncrement() float64 {
	if p.RoundingIncrement > 0 {
		return p.RoundingIncrement
	}
	return DefaultIncrementForCurrency(p.Currency)
}

// DefaultIncrementForCurrency returns the price rounding increment used for
// a currency when the plan does not configure one.
func DefaultIncrementForCurrency(currency string) float64 {
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case CurrencyINR:
		return 10
	default:
		return 1
	}
}

// GrossPrice returns the current price including the plan's tax percentage.
func (p *Plan) GrossPrice() float64 {
	return p.CurrentPrice * (1 + p.TaxPercentage/100)
}
