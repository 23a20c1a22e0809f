package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/PricePilot/PricePilot/app/models"
)

type fakePlanRepo struct {
	plans []models.Plan
	err   error
}

func (f *fakePlanRepo) Create(plan *models.Plan) error { return nil }
func (f *fakePlanRepo) GetByID(id uint) (*models.Plan, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakePlanRepo) GetBySlug(slug string) (*models.Plan, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakePlanRepo) GetActiveAutomated() ([]models.Plan, error) { return f.plans, f.err }
func (f *fakePlanRepo) List(offset, limit int) ([]models.Plan, error) {
	return f.plans, nil
}
func (f *fakePlanRepo) Count() (int64, error)          { return int64(len(f.plans)), nil }
func (f *fakePlanRepo) Update(plan *models.Plan) error { return nil }
func (f *fakePlanRepo) UpdatePriceChecked(planID uint, version uint, newPrice float64, updatedAt time.Time, entry *models.PriceHistory) error {
	return nil
}

type fakeConditionRepo struct {
	deactivated int64
	err         error
	calls       int
}

func (f *fakeConditionRepo) Create(c *models.MarketCondition) error { return nil }
func (f *fakeConditionRepo) GetByID(id uint) (*models.MarketCondition, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeConditionRepo) GetActiveAt(t time.Time) ([]models.MarketCondition, error) {
	return nil, nil
}
func (f *fakeConditionRepo) GetBySource(source string) ([]models.MarketCondition, error) {
	return nil, nil
}
func (f *fakeConditionRepo) Update(c *models.MarketCondition) error                { return nil }
func (f *fakeConditionRepo) UpsertCompetitorCondition(c *models.MarketCondition) error { return nil }
func (f *fakeConditionRepo) DeactivateExpired(now time.Time) (int64, error) {
	f.calls++
	return f.deactivated, f.err
}

func newTestManager(plans *fakePlanRepo, conditions *fakeConditionRepo) *Manager {
	return InitializeManager(nil, nil, nil, plans, conditions)
}

func TestGetManagerPanicsWhenUninitialized(t *testing.T) {
	managerMu.Lock()
	saved := globalManager
	globalManager = nil
	managerMu.Unlock()
	defer func() {
		managerMu.Lock()
		globalManager = saved
		managerMu.Unlock()
	}()

	assert.Panics(t, func() { GetManager() })
}

func TestInitializeManagerSetsGlobal(t *testing.T) {
	m := newTestManager(&fakePlanRepo{}, &fakeConditionRepo{})

	assert.Same(t, m, GetManager())
	assert.False(t, m.IsRunning())
}

func TestStartStopLifecycle(t *testing.T) {
	m := newTestManager(&fakePlanRepo{}, &fakeConditionRepo{})

	m.Start()
	assert.True(t, m.IsRunning())

	// Second start is a no-op.
	m.Start()
	assert.True(t, m.IsRunning())

	m.Stop()
	assert.False(t, m.IsRunning())

	// Second stop is a no-op.
	m.Stop()
	assert.False(t, m.IsRunning())
}

func TestManagerIsRestartable(t *testing.T) {
	m := newTestManager(&fakePlanRepo{}, &fakeConditionRepo{})

	m.Start()
	m.Stop()
	m.Start()
	assert.True(t, m.IsRunning())
	m.Stop()
}

func TestGetStatusWhenStopped(t *testing.T) {
	m := newTestManager(&fakePlanRepo{}, &fakeConditionRepo{})

	status := m.GetStatus()

	assert.False(t, status.Running)
	assert.Empty(t, status.ScheduledJobs)
}

func TestGetStatusWhenRunning(t *testing.T) {
	m := newTestManager(&fakePlanRepo{}, &fakeConditionRepo{})
	m.Start()
	defer m.Stop()

	status := m.GetStatus()

	require.True(t, status.Running)
	assert.False(t, status.StartedAt.IsZero())
	require.Len(t, status.ScheduledJobs, 5)

	names := make([]string, 0, len(status.ScheduledJobs))
	for _, job := range status.ScheduledJobs {
		names = append(names, job.Name)
		assert.NotEmpty(t, job.Interval)
	}
	assert.Contains(t, names, "catalog_evaluation")
	assert.Contains(t, names, "market_refresh")
	assert.Contains(t, names, "competitor_poll")
	assert.Contains(t, names, "history_archive")
}

func TestRunCatalogEvaluationOnceEmptyCatalog(t *testing.T) {
	m := newTestManager(&fakePlanRepo{}, &fakeConditionRepo{})

	assert.NoError(t, m.RunCatalogEvaluationOnce())
}

func TestRunCatalogEvaluationOncePropagatesLoadError(t *testing.T) {
	loadErr := errors.New("db gone")
	m := newTestManager(&fakePlanRepo{err: loadErr}, &fakeConditionRepo{})

	assert.ErrorIs(t, m.RunCatalogEvaluationOnce(), loadErr)
}

func TestRunMarketRefreshOnce(t *testing.T) {
	conditions := &fakeConditionRepo{deactivated: 3}
	m := newTestManager(&fakePlanRepo{}, conditions)

	require.NoError(t, m.RunMarketRefreshOnce())
	assert.Equal(t, 1, conditions.calls)
}

func TestRunMarketRefreshOnceReturnsError(t *testing.T) {
	refreshErr := errors.New("deadlock")
	m := newTestManager(&fakePlanRepo{}, &fakeConditionRepo{err: refreshErr})

	assert.ErrorIs(t, m.RunMarketRefreshOnce(), refreshErr)
}

func TestRunCompetitorPollOnceWithoutClient(t *testing.T) {
	m := newTestManager(&fakePlanRepo{}, &fakeConditionRepo{})

	assert.NotPanics(t, func() { m.RunCompetitorPollOnce() })
}
