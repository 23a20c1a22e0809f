package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/PricePilot/PricePilot/app/models"
)

func demandRule(id uint, level string, percent float64) models.AutomationRule {
	return models.AutomationRule{
		ID:             id,
		Name:           "demand surge",
		Enabled:        true,
		ConditionField: models.RuleFieldDemandLevel,
		ConditionOp:    models.RuleOperatorEq,
		ConditionValue: level,
		ActionType:     models.RuleActionPercentage,
		ActionValue:    percent,
	}
}

func TestApplyRulesPercentageAndFixed(t *testing.T) {
	fetched := []models.AutomationRule{
		demandRule(1, "high", 5),
		{
			ID:             2,
			Name:           "flat bump",
			Enabled:        true,
			ConditionField: models.RuleFieldCurrentPrice,
			ConditionOp:    models.RuleOperatorGt,
			ConditionValue: "1000",
			ActionType:     models.RuleActionFixed,
			ActionValue:    10,
		},
	}

	outcome := ApplyRules(fetched, 1100, EvalContext{DemandLevel: "high", Now: time.Now()})

	assert.InDelta(t, 1165, outcome.Price, 0.0001) // 1100 * 1.05 + 10
	assert.Len(t, outcome.AppliedRules, 2)
	assert.Equal(t, 1100.0, outcome.AppliedRules[0].PriceBefore)
	assert.Equal(t, 1155.0, outcome.AppliedRules[0].PriceAfter)
}

func TestApplyRulesExclusiveShortCircuits(t *testing.T) {
	fetched := []models.AutomationRule{
		{
			ID:             1,
			Name:           "flash sale",
			Enabled:        true,
			ConditionField: models.RuleFieldDemandLevel,
			ConditionOp:    models.RuleOperatorEq,
			ConditionValue: "low",
			ActionType:     models.RuleActionSet,
			ActionValue:    499,
			Exclusive:      true,
		},
		demandRule(2, "low", 50), // must never run
	}

	outcome := ApplyRules(fetched, 1000, EvalContext{DemandLevel: "low", Now: time.Now()})

	assert.Equal(t, 499.0, outcome.Price)
	assert.Len(t, outcome.AppliedRules, 1)
	assert.True(t, outcome.AppliedRules[0].Exclusive)
}

func TestApplyRulesSkipsInvalidResults(t *testing.T) {
	fetched := []models.AutomationRule{
		{
			ID:             1,
			Name:           "broken discount",
			Enabled:        true,
			ConditionField: models.RuleFieldCurrentPrice,
			ConditionOp:    models.RuleOperatorGt,
			ConditionValue: "0",
			ActionType:     models.RuleActionFixed,
			ActionValue:    -2000,
		},
		demandRule(2, "high", 5),
	}

	outcome := ApplyRules(fetched, 1000, EvalContext{DemandLevel: "high", Now: time.Now()})

	// The negative result is a no-op, the next rule still runs.
	assert.InDelta(t, 1050, outcome.Price, 0.0001)
	assert.Len(t, outcome.AppliedRules, 1)
	assert.Equal(t, uint(2), outcome.AppliedRules[0].RuleID)
}

func TestApplyRulesNoMatchLeavesPriceUntouched(t *testing.T) {
	fetched := []models.AutomationRule{demandRule(1, "high", 5)}

	outcome := ApplyRules(fetched, 1000, EvalContext{DemandLevel: "low", Now: time.Now()})

	assert.Equal(t, 1000.0, outcome.Price)
	assert.Empty(t, outcome.AppliedRules)
}

func TestApplyRulesLaterRuleSeesUpdatedPrice(t *testing.T) {
	fetched := []models.AutomationRule{
		demandRule(1, "high", 10),
		{
			ID:             2,
			Name:           "cap check",
			Enabled:        true,
			ConditionField: models.RuleFieldCurrentPrice,
			ConditionOp:    models.RuleOperatorGte,
			ConditionValue: "1100",
			ActionType:     models.RuleActionSet,
			ActionValue:    1100,
		},
	}

	outcome := ApplyRules(fetched, 1000, EvalContext{DemandLevel: "high", Now: time.Now()})

	// 1000 -> 1100 after the surge, then the cap rule matches on 1100.
	assert.Equal(t, 1100.0, outcome.Price)
	assert.Len(t, outcome.AppliedRules, 2)
}

func TestApplyRulesOverrides(t *testing.T) {
	fetched := []models.AutomationRule{demandRule(1, "high", 5)}

	ectx := EvalContext{
		DemandLevel: "low",
		Now:         time.Now(),
		Overrides:   map[string]string{models.RuleFieldDemandLevel: "high"},
	}
	outcome := ApplyRules(fetched, 1000, ectx)

	assert.InDelta(t, 1050, outcome.Price, 0.0001)
}

func TestCompareNumericOperators(t *testing.T) {
	tests := []struct {
		actual   float64
		op       string
		expected string
		want     bool
	}{
		{5, models.RuleOperatorEq, "5", true},
		{5, models.RuleOperatorNe, "5", false},
		{5, models.RuleOperatorGt, "4", true},
		{5, models.RuleOperatorGte, "5", true},
		{5, models.RuleOperatorLt, "6", true},
		{5, models.RuleOperatorLte, "4", false},
		{5, models.RuleOperatorEq, "not-a-number", false},
		{5, "unknown", "5", false},
	}

	for _, tt := range tests {
		if got := compareNumeric(tt.actual, tt.op, tt.expected); got != tt.want {
			t.Fatalf("compareNumeric(%v, %q, %q) = %v, want %v", tt.actual, tt.op, tt.expected, got, tt.want)
		}
	}
}
