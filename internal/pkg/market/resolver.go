package market

import (
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/PricePilot/PricePilot/app/models"
	"github.com/PricePilot/PricePilot/app/repository"
	metrics "github.com/PricePilot/PricePilot/internal/pkg/metrics/counter"
)

// AppliedCondition is the audit snapshot of one contributing condition.
type AppliedCondition struct {
	ConditionID uint    `json:"condition_id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Multiplier  float64 `json:"multiplier"`
	Priority    int     `json:"priority"`
}

// Resolution is the aggregate market signal for one plan. Degraded is set
// when condition data could not be loaded and the resolver fell back to a
// neutral multiplier.
type Resolution struct {
	Multiplier        float64            `json:"multiplier"`
	AppliedConditions []AppliedCondition `json:"applied_conditions"`
	DemandLevel       string             `json:"demand_level,omitempty"`
	Degraded          bool               `json:"degraded,omitempty"`
	Error             string             `json:"error,omitempty"`
	ResolvedAt        time.Time          `json:"resolved_at"`
}

// Resolver aggregates independently expiring market conditions into one
// multiplier per plan.
type Resolver struct {
	conditions repository.MarketConditionRepository
}

// NewResolver creates a market condition resolver.
func NewResolver(conditions repository.MarketConditionRepository) *Resolver {
	return &Resolver{conditions: conditions}
}

// Resolve returns the combined multiplier for the plan at time now.
// It never fails: a data-access error degrades to multiplier 1.0 with the
// Degraded flag set so price calculation can proceed.
func (r *Resolver) Resolve(plan *models.Plan, now time.Time) Resolution {
	res := Resolution{Multiplier: 1.0, ResolvedAt: now}

	active, err := r.conditions.GetActiveAt(now)
	if err != nil {
		log.Errorf("[MarketResolver] Failed to load market conditions: %v", err)
		res.Degraded = true
		res.Error = err.Error()
		return res
	}

	res = Combine(active, plan, now)
	res.ResolvedAt = now

	for _, applied := range res.AppliedConditions {
		if err := metrics.AddConditionApplied(applied.ConditionID); err != nil {
			log.Warnf("[MarketResolver] Failed to count application of condition %d: %v", applied.ConditionID, err)
		}
	}

	return res
}

// Combine is the pure aggregation core: conditions are assumed sorted
// ascending by priority (the fetch order). Multiplication is commutative,
// but the applied order is recorded for the audit trail. The demand level
// of the highest-priority applicable demand condition feeds the rule
// engine's demand_level field.
func Combine(conditions []models.MarketCondition, plan *models.Plan, now time.Time) Resolution {
	res := Resolution{Multiplier: 1.0}

	demandPriority := 0
	for i := range conditions {
		cond := &conditions[i]
		if !cond.IsValidAt(now) || !cond.AppliesToPlan(plan.ID) {
			continue
		}
		if cond.Multiplier <= 0 {
			log.Warnf("[MarketResolver] Condition %d (%s) has non-positive multiplier %v, ignoring", cond.ID, cond.Name, cond.Multiplier)
			continue
		}

		res.Multiplier *= cond.Multiplier
		res.AppliedConditions = append(res.AppliedConditions, AppliedCondition{
			ConditionID: cond.ID,
			Name:        cond.Name,
			Type:        cond.Type,
			Multiplier:  cond.Multiplier,
			Priority:    cond.Priority,
		})

		if cond.Type == models.MarketConditionTypeDemand && cond.DemandLevel != "" {
			if res.DemandLevel == "" || cond.Priority >= demandPriority {
				res.DemandLevel = cond.DemandLevel
				demandPriority = cond.Priority
			}
		}
	}

	return res
}
