package rules

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/PricePilot/PricePilot/app/models"
	"github.com/PricePilot/PricePilot/app/repository"
)

// EvalContext carries the running state a rule condition can compare
// against. CandidatePrice is updated between rules so later rules see the
// effect of earlier ones.
type EvalContext struct {
	CandidatePrice   float64
	MarketMultiplier float64
	DemandLevel      string
	Season           string
	Now              time.Time
	// Overrides lets callers pin condition fields for this evaluation,
	// e.g. a what-if quote with demand_level=high.
	Overrides map[string]string
}

// AppliedRule is the audit snapshot of one applied rule, stored with the
// price history row.
type AppliedRule struct {
	RuleID      uint    `json:"rule_id"`
	Name        string  `json:"name"`
	ActionType  string  `json:"action_type"`
	ActionValue float64 `json:"action_value"`
	PriceBefore float64 `json:"price_before"`
	PriceAfter  float64 `json:"price_after"`
	Exclusive   bool    `json:"exclusive,omitempty"`
}

// Outcome is the result of one engine pass.
type Outcome struct {
	Price        float64
	AppliedRules []AppliedRule
}

// Engine applies prioritized automation rules to a candidate price.
type Engine struct {
	rules repository.AutomationRuleRepository
}

// NewEngine creates a rule engine backed by the given repository.
func NewEngine(rules repository.AutomationRuleRepository) *Engine {
	return &Engine{rules: rules}
}

// Apply fetches the enabled rules for the plan's category and runs them
// against the candidate price. Execution statistics are recorded
// best-effort; a stats write failure never fails the evaluation.
func (e *Engine) Apply(categoryID uint, price float64, ectx EvalContext) (Outcome, error) {
	fetched, err := e.rules.GetEnabledForCategory(categoryID)
	if err != nil {
		return Outcome{Price: price}, err
	}

	outcome := ApplyRules(fetched, price, ectx)

	for _, applied := range outcome.AppliedRules {
		if err := e.rules.RecordExecution(applied.RuleID, ectx.Now); err != nil {
			log.Warnf("[RuleEngine] Failed to record execution for rule %d: %v", applied.RuleID, err)
		}
	}

	return outcome, nil
}

// ApplyRules is the pure evaluation core: rules are assumed pre-filtered
// and sorted descending by priority. Each matching rule mutates the
// candidate price in order; an exclusive rule terminates the pass once
// applied. A rule whose action would produce a negative or non-finite
// price is skipped as a no-op.
func ApplyRules(fetched []models.AutomationRule, price float64, ectx EvalContext) Outcome {
	outcome := Outcome{Price: price}
	ectx.CandidatePrice = price

	for i := range fetched {
		rule := &fetched[i]
		if !evaluateCondition(rule, ectx) {
			continue
		}

		next := applyAction(rule, outcome.Price)
		if math.IsNaN(next) || math.IsInf(next, 0) || next < 0 {
			log.Warnf("[RuleEngine] Rule %d (%s) produced invalid price %v, skipping", rule.ID, rule.Name, next)
			continue
		}

		outcome.AppliedRules = append(outcome.AppliedRules, AppliedRule{
			RuleID:      rule.ID,
			Name:        rule.Name,
			ActionType:  rule.ActionType,
			ActionValue: rule.ActionValue,
			PriceBefore: outcome.Price,
			PriceAfter:  next,
			Exclusive:   rule.Exclusive,
		})
		outcome.Price = next
		ectx.CandidatePrice = next

		if rule.Exclusive {
			break
		}
	}

	return outcome
}

// evaluateCondition compares one rule condition against the context.
// Numeric fields support the full operator set, string fields only eq/ne.
func evaluateCondition(rule *models.AutomationRule, ectx EvalContext) bool {
	if raw, ok := ectx.Overrides[rule.ConditionField]; ok {
		return compareString(raw, rule.ConditionOp, rule.ConditionValue) ||
			compareNumericStrings(raw, rule.ConditionOp, rule.ConditionValue)
	}

	switch rule.ConditionField {
	case models.RuleFieldCurrentPrice:
		return compareNumeric(ectx.CandidatePrice, rule.ConditionOp, rule.ConditionValue)
	case models.RuleFieldMarketMultiplier:
		return compareNumeric(ectx.MarketMultiplier, rule.ConditionOp, rule.ConditionValue)
	case models.RuleFieldDemandLevel:
		return compareString(ectx.DemandLevel, rule.ConditionOp, rule.ConditionValue)
	case models.RuleFieldSeason:
		return compareString(ectx.Season, rule.ConditionOp, rule.ConditionValue)
	case models.RuleFieldHourOfDay:
		return compareNumeric(float64(ectx.Now.Hour()), rule.ConditionOp, rule.ConditionValue)
	case models.RuleFieldDayOfWeek:
		return compareNumeric(float64(ectx.Now.Weekday()), rule.ConditionOp, rule.ConditionValue)
	default:
		return false
	}
}

func compareNumeric(actual float64, op, expected string) bool {
	want, err := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if err != nil {
		return false
	}
	switch op {
	case models.RuleOperatorEq:
		return actual == want
	case models.RuleOperatorNe:
		return actual != want
	case models.RuleOperatorGt:
		return actual > want
	case models.RuleOperatorGte:
		return actual >= want
	case models.RuleOperatorLt:
		return actual < want
	case models.RuleOperatorLte:
		return actual <= want
	default:
		return false
	}
}

func compareNumericStrings(actual, op, expected string) bool {
	a, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	if err != nil {
		return false
	}
	return compareNumeric(a, op, expected)
}

func compareString(actual, op, expected string) bool {
	a := strings.ToLower(strings.TrimSpace(actual))
	w := strings.ToLower(strings.TrimSpace(expected))
	switch op {
	case models.RuleOperatorEq:
		return a == w
	case models.RuleOperatorNe:
		return a != w
	default:
		return false
	}
}

// applyAction computes the rule's price adjustment.
func applyAction(rule *models.AutomationRule, price float64) float64 {
	switch rule.ActionType {
	case models.RuleActionPercentage:
		return price * (1 + rule.ActionValue/100)
	case models.RuleActionFixed:
		return price + rule.ActionValue
	case models.RuleActionSet:
		return rule.ActionValue
	default:
		return price
	}
}
