package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/PricePilot/PricePilot/app/models"
	"github.com/PricePilot/PricePilot/app/repository"
	"github.com/PricePilot/PricePilot/internal/pkg/env"
)

const (
	// competitorFailureThreshold consecutive failures open the breaker for
	// a source; while open the source is skipped instead of polled.
	competitorFailureThreshold = 3
	competitorCoolOff          = 30 * time.Minute

	// Competitor multipliers are clamped so one bad feed cannot halve or
	// double a price on its own.
	competitorMultiplierMin = 0.5
	competitorMultiplierMax = 1.5
)

// CompetitorPrice is one price point returned by a competitor source.
type CompetitorPrice struct {
	PlanName string  `json:"plan_name"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// CompetitorSource is a configured external price feed.
type CompetitorSource struct {
	Name string
	URL  string
}

type breakerState struct {
	failures  int
	openUntil time.Time
}

// CompetitorClient polls external price feeds and folds them into
// competitor-type market conditions. Every request carries a short
// timeout; repeated failures short-circuit a source so the scheduled batch
// never blocks on a dead feed.
type CompetitorClient struct {
	httpClient *http.Client
	sources    []CompetitorSource
	plans      repository.PlanRepository
	conditions repository.MarketConditionRepository

	mu       sync.Mutex
	breakers map[string]*breakerState
}

// NewCompetitorClient builds a client from COMPETITOR_SOURCES
// ("name1=url1,name2=url2") and COMPETITOR_TIMEOUT_SECONDS.
func NewCompetitorClient(plans repository.PlanRepository, conditions repository.MarketConditionRepository) *CompetitorClient {
	timeoutSeconds := 5
	if v, err := strconv.Atoi(env.GetEnv("COMPETITOR_TIMEOUT_SECONDS", "5")); err == nil && v > 0 {
		timeoutSeconds = v
	}

	var sources []CompetitorSource
	for _, entry := range strings.Split(env.GetEnv("COMPETITOR_SOURCES", ""), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			log.Warnf("[CompetitorSync] Ignoring malformed source entry %q", entry)
			continue
		}
		sources = append(sources, CompetitorSource{Name: parts[0], URL: parts[1]})
	}

	return &CompetitorClient{
		httpClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		sources:    sources,
		plans:      plans,
		conditions: conditions,
		breakers:   make(map[string]*breakerState),
	}
}

// PollOnce fetches every configured source and upserts competitor
// conditions for matching plans. Per-source failures are isolated; the
// poll always completes.
func (c *CompetitorClient) PollOnce(ctx context.Context) {
	if len(c.sources) == 0 {
		log.Debug("[CompetitorSync] No competitor sources configured")
		return
	}

	plans, err := c.plans.GetActiveAutomated()
	if err != nil {
		log.Errorf("[CompetitorSync] Failed to load plans: %v", err)
		return
	}
	byName := make(map[string]*models.Plan, len(plans))
	for i := range plans {
		byName[strings.ToLower(plans[i].Name)] = &plans[i]
	}

	for _, source := range c.sources {
		if c.isOpen(source.Name) {
			log.Debugf("[CompetitorSync] Breaker open for source %s, skipping", source.Name)
			continue
		}

		prices, err := c.fetch(ctx, source)
		if err != nil {
			c.recordFailure(source.Name)
			log.Warnf("[CompetitorSync] Source %s failed: %v", source.Name, err)
			continue
		}
		c.recordSuccess(source.Name)

		c.applyPrices(source, prices, byName)
	}
}

// fetch retrieves and decodes one source feed.
func (c *CompetitorClient) fetch(ctx context.Context, source CompetitorSource) ([]CompetitorPrice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var prices []CompetitorPrice
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return prices, nil
}

// applyPrices folds one source's feed into competitor conditions. Entries
// for unknown plans or with unusable prices are skipped, partial feeds are
// fine.
func (c *CompetitorClient) applyPrices(source CompetitorSource, prices []CompetitorPrice, byName map[string]*models.Plan) {
	now := time.Now()
	validUntil := now.Add(24 * time.Hour)

	for _, price := range prices {
		plan, ok := byName[strings.ToLower(strings.TrimSpace(price.PlanName))]
		if !ok {
			continue
		}
		if price.Price <= 0 || plan.BasePrice <= 0 {
			continue
		}
		if !strings.EqualFold(price.Currency, plan.Currency) {
			log.Debugf("[CompetitorSync] Currency mismatch for plan %s (%s vs %s), skipping", plan.Name, price.Currency, plan.Currency)
			continue
		}

		multiplier := price.Price / plan.BasePrice
		if multiplier < competitorMultiplierMin {
			multiplier = competitorMultiplierMin
		}
		if multiplier > competitorMultiplierMax {
			multiplier = competitorMultiplierMax
		}

		condition := &models.MarketCondition{
			Name:       fmt.Sprintf("competitor:%s:%s", source.Name, plan.Slug),
			Type:       models.MarketConditionTypeCompetitor,
			Multiplier: multiplier,
			StartDate:  &now,
			EndDate:    &validUntil,
			AllPlans:   false,
			Priority:   10,
			IsActive:   true,
			Source:     models.MarketConditionSourceCompetitorPoll,
			Plans:      []models.Plan{*plan},
		}
		if err := c.conditions.UpsertCompetitorCondition(condition); err != nil {
			log.Errorf("[CompetitorSync] Failed to upsert condition for plan %s: %v", plan.Name, err)
		}
	}
}

func (c *CompetitorClient) isOpen(source string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.breakers[source]
	if !ok {
		return false
	}
	if state.failures < competitorFailureThreshold {
		return false
	}
	if time.Now().After(state.openUntil) {
		// Cool-off elapsed: allow one probe.
		state.failures = competitorFailureThreshold - 1
		return false
	}
	return true
}

func (c *CompetitorClient) recordFailure(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.breakers[source]
	if !ok {
		state = &breakerState{}
		c.breakers[source] = state
	}
	state.failures++
	if state.failures >= competitorFailureThreshold {
		state.openUntil = time.Now().Add(competitorCoolOff)
		log.Warnf("[CompetitorSync] Breaker opened for source %s (%d consecutive failures)", source, state.failures)
	}
}

func (c *CompetitorClient) recordSuccess(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.breakers, source)
}
