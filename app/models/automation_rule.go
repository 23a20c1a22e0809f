package models

import (
	"time"
)

// Condition fields an automation rule can compare against.
const (
	RuleFieldCurrentPrice     = "current_price"
	RuleFieldMarketMultiplier = "market_multiplier"
	RuleFieldDemandLevel      = "demand_level"
	RuleFieldSeason           = "season"
	RuleFieldHourOfDay        = "hour_of_day"
	RuleFieldDayOfWeek        = "day_of_week"
)

// Comparison operators for rule conditions.
const (
	RuleOperatorEq  = "eq"
	RuleOperatorNe  = "ne"
	RuleOperatorGt  = "gt"
	RuleOperatorGte = "gte"
	RuleOperatorLt  = "lt"
	RuleOperatorLte = "lte"
)

const (
	RuleActionPercentage = "percentage"
	RuleActionFixed      = "fixed"
	RuleActionSet        = "set"
)

// AutomationRule is an operator-authored conditional price adjustment.
// Rules are evaluated in descending priority order; an exclusive rule stops
// evaluation of all lower-priority rules once it has been applied.
type AutomationRule struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	Enabled        bool       `gorm:"default:true;index" json:"enabled"`
	Priority       int        `gorm:"not null;default:0;index" json:"priority"`
	CategoryID     uint       `gorm:"default:0;index" json:"category_id"` // 0 = all categories
	ConditionField string     `gorm:"type:varchar(32);not null" json:"condition_field"`
	ConditionOp    string     `gorm:"type:varchar(8);not null" json:"condition_op"`
	ConditionValue string     `gorm:"size:255;not null" json:"condition_value"`
	ActionType     string     `gorm:"type:varchar(16);not null" json:"action_type"`
	ActionValue    float64    `gorm:"type:decimal(12,4);not null" json:"action_value"`
	Exclusive      bool       `gorm:"default:false" json:"exclusive"`
	ExecutionCount uint64     `gorm:"default:0" json:"execution_count"`
	LastRunAt      *time.Time `gorm:"type:timestamp;default:null" json:"last_run_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// AppliesToCategory reports whether the rule covers plans of the given
// category. CategoryID 0 means the rule is global.
func (r *AutomationRule) AppliesToCategory(categoryID uint) bool {
	return r.CategoryID == 0 || r.CategoryID == categoryID
}
