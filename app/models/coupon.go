package models

import (
	"strings"
	"time"
)

const (
	CouponTypePercentage = "percentage"
	CouponTypeFixed      = "fixed"
	CouponTypeFreeTrial  = "free_trial"
)

// Coupon is a promotional discount code. Codes are stored uppercase and
// matched case-insensitively via NormalizeCouponCode.
type Coupon struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	Code                  string     `gorm:"size:64;not null;uniqueIndex" json:"code" validate:"required,min=3,max=64"`
	Type                  string     `gorm:"type:varchar(16);not null" json:"type" validate:"required,oneof=percentage fixed free_trial"`
	Value                 float64    `gorm:"type:decimal(12,2);not null" json:"value" validate:"gte=0"`
	MaxDiscountAmount     float64    `gorm:"type:decimal(12,2);default:0" json:"max_discount_amount"` // 0 = uncapped
	StartDate             *time.Time `gorm:"type:timestamp;default:null" json:"start_date,omitempty"`
	EndDate               *time.Time `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	MaxRedemptions        uint       `gorm:"default:0" json:"max_redemptions"` // 0 = unlimited
	MaxRedemptionsPerUser uint       `gorm:"default:0" json:"max_redemptions_per_user"`
	Stackable             bool       `gorm:"default:false" json:"stackable"`
	ForNewUsersOnly       bool       `gorm:"default:false" json:"for_new_users_only"`
	AllPlans              bool       `gorm:"default:true" json:"all_plans"`
	CategoryID            uint       `gorm:"default:0" json:"category_id"` // 0 = any category
	TimesRedeemed         uint       `gorm:"default:0" json:"times_redeemed"`
	TimesValidated        uint64     `gorm:"default:0" json:"times_validated"` // observability counter, flushed from Redis
	TotalDiscountGiven    float64    `gorm:"type:decimal(14,2);default:0" json:"total_discount_given"`
	IsActive              bool       `gorm:"default:true;index" json:"is_active"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Plans []Plan `gorm:"many2many:coupon_plans;" json:"plans,omitempty"`
}

// CouponRedemption records one successful redemption. Rows are the source of
// truth for per-user usage caps.
type CouponRedemption struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CouponID       uint      `gorm:"not null;index:idx_coupon_redemptions_coupon_user,priority:1" json:"coupon_id"`
	UserID         uint      `gorm:"not null;index:idx_coupon_redemptions_coupon_user,priority:2" json:"user_id"`
	PlanID         uint      `gorm:"not null;index" json:"plan_id"`
	AmountBefore   float64   `gorm:"type:decimal(12,2);not null" json:"amount_before"`
	DiscountAmount float64   `gorm:"type:decimal(12,2);not null" json:"discount_amount"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// NormalizeCouponCode maps user input to the canonical stored form.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsWithinValidity reports whether t falls inside the coupon's validity
// window. Nil dates leave the window open on that side.
func (c *Coupon) IsWithinValidity(t time.Time) bool {
	if c.StartDate != nil && t.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && t.After(*c.EndDate) {
		return false
	}
	return true
}

// IsExhausted reports whether the global redemption cap has been reached.
func (c *Coupon) IsExhausted() bool {
	return c.MaxRedemptions > 0 && c.TimesRedeemed >= c.MaxRedemptions
}

// AppliesToPlan reports whether the coupon may be used on the given plan.
func (c *Coupon) AppliesToPlan(plan *Plan) bool {
	if c.CategoryID != 0 && c.CategoryID != plan.CategoryID {
		return false
	}
	if c.AllPlans {
		return true
	}
	for _, p := range c.Plans {
		if p.ID == plan.ID {
			return true
		}
	}
	return false
}

// RawDiscount returns the undiscounted-cap discount for the given amount.
// The MaxDiscountAmount cap and the final-amount floor are applied by the
// discount engine, not here.
func (c *Coupon) RawDiscount(amount float64) float64 {
	switch c.Type {
	case CouponTypePercentage:
		return amount * c.Value / 100
	case CouponTypeFixed:
		return c.Value
	case CouponTypeFreeTrial:
		return amount
	default:
		return 0
	}
}
