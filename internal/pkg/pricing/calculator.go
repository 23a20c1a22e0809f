package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/PricePilot/PricePilot/app/models"
	"github.com/PricePilot/PricePilot/app/repository"
	"github.com/PricePilot/PricePilot/internal/pkg/market"
	"github.com/PricePilot/PricePilot/internal/pkg/rules"
)

// Invalidator removes cached price reads for a plan after a committed
// price write.
type Invalidator interface {
	InvalidatePlan(planID uint) error
}

// Notifier receives significant price changes fire-and-forget.
type Notifier interface {
	NotifyPriceChange(plan *models.Plan, oldPrice, newPrice, changePercent float64)
}

// EvalOptions control one plan evaluation.
type EvalOptions struct {
	// SeedCurrent starts the pipeline from CurrentPrice instead of
	// BasePrice. The default (BasePrice) keeps scheduled evaluation
	// idempotent and re-derivable from current data.
	SeedCurrent bool
	ChangeType  string
	ActorType   string
	ActorID     uint
	BatchID     string
	// Overrides pin rule condition fields for this evaluation.
	Overrides map[string]string
	Now       time.Time
}

// Result reports the outcome of one plan evaluation.
type Result struct {
	PlanID        uint                `json:"plan_id"`
	OldPrice      float64             `json:"old_price"`
	NewPrice      float64             `json:"new_price"`
	ChangePercent float64             `json:"change_percent"`
	PriceChanged  bool                `json:"price_changed"`
	Skipped       bool                `json:"skipped,omitempty"` // lost the version race twice
	AppliedRules  []rules.AppliedRule `json:"applied_rules"`
	Market        market.Resolution   `json:"market"`
}

// Calculator derives and persists a plan's effective price. History rows
// travel with the price write through the plan repository, so the two
// commit or fail together.
type Calculator struct {
	plans    repository.PlanRepository
	resolver *market.Resolver
	engine   *rules.Engine
	cache    Invalidator
	notifier Notifier
}

// NewCalculator wires a price calculator. Cache and notifier may be nil.
func NewCalculator(
	plans repository.PlanRepository,
	resolver *market.Resolver,
	engine *rules.Engine,
	cache Invalidator,
	notifier Notifier,
) *Calculator {
	return &Calculator{
		plans:    plans,
		resolver: resolver,
		engine:   engine,
		cache:    cache,
		notifier: notifier,
	}
}

// Evaluate runs the full pipeline for one plan: market multiplier, rule
// engine, bounds clamp, increment rounding, optimistic write, history row,
// cache invalidation. A version conflict is retried once against fresh
// data; losing again marks the plan skipped for this round.
func (c *Calculator) Evaluate(plan *models.Plan, opts EvalOptions) (*Result, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.ChangeType == "" {
		opts.ChangeType = models.PriceChangeTypeAutomation
	}
	if opts.ActorType == "" {
		opts.ActorType = models.ActorTypeSystem
	}

	result, err := c.evaluateOnce(plan, opts)
	if err == nil || !errors.Is(err, repository.ErrVersionConflict) {
		return result, err
	}

	// Lost the version race: retry once against fresh data.
	log.Infof("[Calculator] Version conflict for plan %d, retrying with fresh data", plan.ID)
	fresh, ferr := c.plans.GetByID(plan.ID)
	if ferr != nil {
		return nil, fmt.Errorf("reload after version conflict: %w", ferr)
	}
	result, err = c.evaluateOnce(fresh, opts)
	if errors.Is(err, repository.ErrVersionConflict) {
		log.Warnf("[Calculator] Plan %d lost the version race twice, skipping this round", plan.ID)
		return &Result{PlanID: plan.ID, OldPrice: fresh.CurrentPrice, NewPrice: fresh.CurrentPrice, Skipped: true}, nil
	}
	return result, err
}

func (c *Calculator) evaluateOnce(plan *models.Plan, opts EvalOptions) (*Result, error) {
	resolution := c.resolver.Resolve(plan, opts.Now)

	seed := plan.BasePrice
	if opts.SeedCurrent {
		seed = plan.CurrentPrice
	}
	candidate := seed * resolution.Multiplier

	ectx := rules.EvalContext{
		CandidatePrice:   candidate,
		MarketMultiplier: resolution.Multiplier,
		DemandLevel:      resolution.DemandLevel,
		Season:           seasonFor(opts.Now),
		Now:              opts.Now,
		Overrides:        opts.Overrides,
	}
	outcome, err := c.engine.Apply(plan.CategoryID, candidate, ectx)
	if err != nil {
		return nil, fmt.Errorf("rule evaluation for plan %d: %w", plan.ID, err)
	}

	clamped := ClampToBounds(outcome.Price, plan.MinPrice, plan.MaxPrice)
	rounded := RoundToIncrement(clamped, plan.EffectiveIncrement())
	if plan.MinPrice > 0 && rounded < plan.MinPrice {
		// A MinPrice off the increment grid would be undercut by flooring.
		// Round up instead, still capped by MaxPrice.
		rounded = ClampToBounds(CeilToIncrement(clamped, plan.EffectiveIncrement()), plan.MinPrice, plan.MaxPrice)
	}

	result := &Result{
		PlanID:        plan.ID,
		OldPrice:      plan.CurrentPrice,
		NewPrice:      rounded,
		ChangePercent: models.ChangePercentFor(plan.CurrentPrice, rounded),
		AppliedRules:  outcome.AppliedRules,
		Market:        resolution,
	}

	if PricesEqual(rounded, plan.CurrentPrice) {
		// Nothing changed: no write, no history row.
		result.NewPrice = plan.CurrentPrice
		result.ChangePercent = 0
		return result, nil
	}

	entry, err := c.historyEntry(plan, result, opts)
	if err != nil {
		return nil, fmt.Errorf("history snapshot for plan %d: %w", plan.ID, err)
	}
	if err := c.plans.UpdatePriceChecked(plan.ID, plan.LockVersion, rounded, opts.Now, entry); err != nil {
		return nil, err
	}
	result.PriceChanged = true

	if c.cache != nil {
		if err := c.cache.InvalidatePlan(plan.ID); err != nil {
			log.Warnf("[Calculator] Cache invalidation failed for plan %d: %v", plan.ID, err)
		}
	}

	if c.notifier != nil {
		c.notifier.NotifyPriceChange(plan, result.OldPrice, result.NewPrice, result.ChangePercent)
	}

	return result, nil
}

// historyEntry builds the audit row persisted together with the price
// write. The row is created inside the same transaction as the guarded
// UPDATE, so a committed price change always carries its history row.
func (c *Calculator) historyEntry(plan *models.Plan, result *Result, opts EvalOptions) (*models.PriceHistory, error) {
	appliedJSON, err := json.Marshal(result.AppliedRules)
	if err != nil {
		return nil, err
	}
	marketJSON, err := json.Marshal(result.Market)
	if err != nil {
		return nil, err
	}

	return &models.PriceHistory{
		PlanID:         plan.ID,
		OldPrice:       result.OldPrice,
		NewPrice:       result.NewPrice,
		ChangePercent:  result.ChangePercent,
		Currency:       plan.Currency,
		ChangeType:     opts.ChangeType,
		AppliedRules:   string(appliedJSON),
		MarketSnapshot: string(marketJSON),
		ActorType:      opts.ActorType,
		ActorID:        opts.ActorID,
		BatchID:        opts.BatchID,
	}, nil
}

// seasonFor maps a timestamp to the season label rules compare against.
func seasonFor(t time.Time) string {
	switch t.Month() {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "autumn"
	}
}
