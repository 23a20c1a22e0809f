package models

import (
	"time"
)

const (
	MarketConditionTypeDemand     = "demand"
	MarketConditionTypeSeason     = "season"
	MarketConditionTypeEconomic   = "economic"
	MarketConditionTypeCompetitor = "competitor"
)

const (
	MarketConditionSourceManual         = "manual"
	MarketConditionSourceSync           = "sync"
	MarketConditionSourceCompetitorPoll = "competitor_poll"
)

const (
	DemandLevelLow    = "low"
	DemandLevelNormal = "normal"
	DemandLevelHigh   = "high"
)

// MarketCondition is a live market signal that contributes a multiplier to
// price evaluation. Conditions expire independently via their validity
// window; a nil StartDate/EndDate means the window is open on that side.
type MarketCondition struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"size:255;not null" json:"name"`
	Type         string     `gorm:"type:varchar(20);not null;index" json:"type"`
	Multiplier   float64    `gorm:"type:decimal(6,4);not null;default:1" json:"multiplier"`
	DemandLevel  string     `gorm:"type:varchar(16);default:''" json:"demand_level,omitempty"`
	StartDate    *time.Time `gorm:"type:timestamp;default:null;index" json:"start_date,omitempty"`
	EndDate      *time.Time `gorm:"type:timestamp;default:null;index" json:"end_date,omitempty"`
	AllPlans     bool       `gorm:"default:true" json:"all_plans"`
	Priority     int        `gorm:"not null;default:0;index" json:"priority"`
	IsActive     bool       `gorm:"default:true;index" json:"is_active"`
	Source       string     `gorm:"type:varchar(20);not null;default:'manual'" json:"source"`
	TimesApplied uint64     `gorm:"default:0" json:"times_applied"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Plans []Plan `gorm:"many2many:market_condition_plans;" json:"plans,omitempty"`
}

// IsValidAt reports whether the condition's validity window contains t.
func (mc *MarketCondition) IsValidAt(t time.Time) bool {
	if mc.StartDate != nil && t.Before(*mc.StartDate) {
		return false
	}
	if mc.EndDate != nil && t.After(*mc.EndDate) {
		return false
	}
	return true
}

// AppliesToPlan reports whether the condition covers the given plan, either
// globally or through an explicit plan assignment.
func (mc *MarketCondition) AppliesToPlan(planID uint) bool {
	if mc.AllPlans {
		return true
	}
	for _, p := range mc.Plans {
		if p.ID == planID {
			return true
		}
	}
	return false
}
