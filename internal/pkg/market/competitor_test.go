package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/PricePilot/PricePilot/app/models"
)

type capturingConditions struct {
	upserted []models.MarketCondition
}

func (c *capturingConditions) Create(cond *models.MarketCondition) error { return nil }
func (c *capturingConditions) GetByID(id uint) (*models.MarketCondition, error) {
	return nil, gorm.ErrRecordNotFound
}
func (c *capturingConditions) GetActiveAt(t time.Time) ([]models.MarketCondition, error) {
	return nil, nil
}
func (c *capturingConditions) GetBySource(source string) ([]models.MarketCondition, error) {
	return nil, nil
}
func (c *capturingConditions) Update(cond *models.MarketCondition) error { return nil }
func (c *capturingConditions) UpsertCompetitorCondition(cond *models.MarketCondition) error {
	c.upserted = append(c.upserted, *cond)
	return nil
}
func (c *capturingConditions) DeactivateExpired(now time.Time) (int64, error) { return 0, nil }

type staticPlans struct {
	plans []models.Plan
}

func (s *staticPlans) Create(plan *models.Plan) error { return nil }
func (s *staticPlans) GetByID(id uint) (*models.Plan, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *staticPlans) GetBySlug(slug string) (*models.Plan, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *staticPlans) GetActiveAutomated() ([]models.Plan, error) { return s.plans, nil }
func (s *staticPlans) List(offset, limit int) ([]models.Plan, error) { return s.plans, nil }
func (s *staticPlans) Count() (int64, error)                          { return int64(len(s.plans)), nil }
func (s *staticPlans) Update(plan *models.Plan) error                 { return nil }
func (s *staticPlans) UpdatePriceChecked(planID uint, version uint, newPrice float64, updatedAt time.Time, entry *models.PriceHistory) error {
	return nil
}

func testClient(sourceURL string, plans *staticPlans, conditions *capturingConditions) *CompetitorClient {
	return &CompetitorClient{
		httpClient: &http.Client{Timeout: time.Second},
		sources:    []CompetitorSource{{Name: "acme", URL: sourceURL}},
		plans:      plans,
		conditions: conditions,
		breakers:   make(map[string]*breakerState),
	}
}

func TestPollOnceUpsertsCompetitorConditions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]CompetitorPrice{
			{PlanName: "Pro", Price: 1200, Currency: "INR"},
			{PlanName: "Unknown Plan", Price: 99, Currency: "INR"},
		})
	}))
	defer server.Close()

	plans := &staticPlans{plans: []models.Plan{
		{ID: 1, Name: "Pro", Slug: "pro", BasePrice: 1000, Currency: models.CurrencyINR},
	}}
	conditions := &capturingConditions{}
	client := testClient(server.URL, plans, conditions)

	client.PollOnce(context.Background())

	require.Len(t, conditions.upserted, 1)
	cond := conditions.upserted[0]
	assert.Equal(t, "competitor:acme:pro", cond.Name)
	assert.Equal(t, models.MarketConditionTypeCompetitor, cond.Type)
	assert.Equal(t, models.MarketConditionSourceCompetitorPoll, cond.Source)
	assert.InDelta(t, 1.2, cond.Multiplier, 0.0001)
}

func TestPollOnceClampsExtremeMultipliers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]CompetitorPrice{
			{PlanName: "Cheap", Price: 10, Currency: "USD"},
			{PlanName: "Steep", Price: 10000, Currency: "USD"},
		})
	}))
	defer server.Close()

	plans := &staticPlans{plans: []models.Plan{
		{ID: 1, Name: "Cheap", Slug: "cheap", BasePrice: 100, Currency: models.CurrencyUSD},
		{ID: 2, Name: "Steep", Slug: "steep", BasePrice: 100, Currency: models.CurrencyUSD},
	}}
	conditions := &capturingConditions{}
	client := testClient(server.URL, plans, conditions)

	client.PollOnce(context.Background())

	require.Len(t, conditions.upserted, 2)
	assert.Equal(t, competitorMultiplierMin, conditions.upserted[0].Multiplier)
	assert.Equal(t, competitorMultiplierMax, conditions.upserted[1].Multiplier)
}

func TestPollOnceSkipsCurrencyMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]CompetitorPrice{
			{PlanName: "Pro", Price: 20, Currency: "USD"},
		})
	}))
	defer server.Close()

	plans := &staticPlans{plans: []models.Plan{
		{ID: 1, Name: "Pro", Slug: "pro", BasePrice: 1000, Currency: models.CurrencyINR},
	}}
	conditions := &capturingConditions{}
	client := testClient(server.URL, plans, conditions)

	client.PollOnce(context.Background())

	assert.Empty(t, conditions.upserted)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	plans := &staticPlans{plans: []models.Plan{
		{ID: 1, Name: "Pro", Slug: "pro", BasePrice: 1000, Currency: models.CurrencyINR},
	}}
	conditions := &capturingConditions{}
	client := testClient(server.URL, plans, conditions)

	for i := 0; i < competitorFailureThreshold; i++ {
		assert.False(t, client.isOpen("acme"))
		client.PollOnce(context.Background())
	}

	assert.True(t, client.isOpen("acme"))
	assert.Empty(t, conditions.upserted)
}

func TestBreakerResetsOnSuccess(t *testing.T) {
	conditions := &capturingConditions{}
	client := testClient("http://unused", &staticPlans{}, conditions)

	client.recordFailure("acme")
	client.recordFailure("acme")
	client.recordSuccess("acme")
	client.recordFailure("acme")

	assert.False(t, client.isOpen("acme"))
}

func TestBreakerAllowsProbeAfterCoolOff(t *testing.T) {
	client := testClient("http://unused", &staticPlans{}, &capturingConditions{})

	for i := 0; i < competitorFailureThreshold; i++ {
		client.recordFailure("acme")
	}
	require.True(t, client.isOpen("acme"))

	// Force the cool-off into the past.
	client.mu.Lock()
	client.breakers["acme"].openUntil = time.Now().Add(-time.Minute)
	client.mu.Unlock()

	assert.False(t, client.isOpen("acme"))
}
