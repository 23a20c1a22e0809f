package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/PricePilot/PricePilot/app/models"
	"github.com/PricePilot/PricePilot/app/repository"
	"github.com/PricePilot/PricePilot/internal/pkg/archive"
	"github.com/PricePilot/PricePilot/internal/pkg/market"
	metrics "github.com/PricePilot/PricePilot/internal/pkg/metrics/counter"
	"github.com/PricePilot/PricePilot/internal/pkg/pricing"
)

// Manager runs the scheduled pricing jobs and background tasks
type Manager struct {
	calculator *pricing.Calculator
	competitor *market.CompetitorClient
	exporter   *archive.Exporter
	plans      repository.PlanRepository
	conditions repository.MarketConditionRepository

	evalTicker         *time.Ticker
	marketTicker       *time.Ticker
	competitorTicker   *time.Ticker
	counterFlushTicker *time.Ticker
	archiveTicker      *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
	startedAt          time.Time
}

var (
	globalManager *Manager
	managerMu     sync.Mutex
)

// InitializeManager wires the global scheduler manager. The exporter may
// be nil when S3 archiving is disabled.
func InitializeManager(
	calculator *pricing.Calculator,
	competitor *market.CompetitorClient,
	exporter *archive.Exporter,
	plans repository.PlanRepository,
	conditions repository.MarketConditionRepository,
) *Manager {
	managerMu.Lock()
	defer managerMu.Unlock()

	globalManager = &Manager{
		calculator: calculator,
		competitor: competitor,
		exporter:   exporter,
		plans:      plans,
		conditions: conditions,
		stopCh:     make(chan struct{}),
	}
	return globalManager
}

// GetManager returns the global scheduler manager
func GetManager() *Manager {
	managerMu.Lock()
	defer managerMu.Unlock()

	if globalManager == nil {
		panic("scheduler manager not initialized - call InitializeManager first")
	}
	return globalManager
}

// Start starts the scheduled jobs and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	m.startedAt = time.Now()
	log.Info("[Scheduler] Starting scheduled pricing jobs")

	settings := models.GetAppSettings()

	m.evalTicker = time.NewTicker(settings.GetEvaluationInterval())
	m.wg.Add(1)
	go m.evaluationWorker()

	m.marketTicker = time.NewTicker(settings.GetMarketRefreshInterval())
	m.wg.Add(1)
	go m.marketRefreshWorker()

	m.competitorTicker = time.NewTicker(settings.GetCompetitorPollInterval())
	m.wg.Add(1)
	go m.competitorWorker()

	// Counter flush worker (Redis -> DB) every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()

	m.archiveTicker = time.NewTicker(24 * time.Hour)
	m.wg.Add(1)
	go m.archiveWorker()

	log.Info("[Scheduler] Started successfully")
}

// Stop stops the scheduled jobs and waits for in-flight evaluations
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler] Stopping scheduled pricing jobs...")

	if m.evalTicker != nil {
		m.evalTicker.Stop()
	}
	if m.marketTicker != nil {
		m.marketTicker.Stop()
	}
	if m.competitorTicker != nil {
		m.competitorTicker.Stop()
	}
	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}
	if m.archiveTicker != nil {
		m.archiveTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	log.Info("[Scheduler] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// JobInfo describes one scheduled job for the status endpoint.
type JobInfo struct {
	Name     string `json:"name"`
	Interval string `json:"interval"`
}

// Status reports the manager state for the engine status endpoint.
type Status struct {
	Running       bool      `json:"running"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	ScheduledJobs []JobInfo `json:"scheduled_jobs"`
}

// GetStatus returns the current scheduler status
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{Running: m.running}
	if !m.running {
		return status
	}

	settings := models.GetAppSettings()
	status.StartedAt = m.startedAt
	status.UptimeSeconds = int64(time.Since(m.startedAt).Seconds())
	status.ScheduledJobs = []JobInfo{
		{Name: "catalog_evaluation", Interval: settings.GetEvaluationInterval().String()},
		{Name: "market_refresh", Interval: settings.GetMarketRefreshInterval().String()},
		{Name: "competitor_poll", Interval: settings.GetCompetitorPollInterval().String()},
		{Name: "counter_flush", Interval: (5 * time.Second).String()},
		{Name: "history_archive", Interval: (24 * time.Hour).String()},
	}
	return status
}

// evaluationWorker periodically re-prices the automated catalog
func (m *Manager) evaluationWorker() {
	defer m.wg.Done()
	log.Infof("[Scheduler] Started evaluation worker (interval: %s)", models.GetAppSettings().GetEvaluationInterval())

	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Evaluation worker stopping")
			return
		case <-m.evalTicker.C:
			if err := m.RunCatalogEvaluationOnce(); err != nil {
				log.Errorf("[Scheduler] Catalog evaluation error: %v", err)
			}
		}
	}
}

// marketRefreshWorker periodically expires stale market conditions
func (m *Manager) marketRefreshWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Market refresh worker stopping")
			return
		case <-m.marketTicker.C:
			if err := m.RunMarketRefreshOnce(); err != nil {
				log.Errorf("[Scheduler] Market refresh error: %v", err)
			}
		}
	}
}

// competitorWorker periodically polls external price feeds
func (m *Manager) competitorWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Competitor worker stopping")
			return
		case <-m.competitorTicker.C:
			m.RunCompetitorPollOnce()
		}
	}
}

// counterFlushWorker periodically flushes in-memory counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := metrics.FlushAll(); err != nil {
				log.Errorf("[Scheduler] Counter flush error: %v", err)
			}
		}
	}
}

// archiveWorker exports the previous day's history once per day
func (m *Manager) archiveWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Archive worker stopping")
			return
		case <-m.archiveTicker.C:
			if m.exporter == nil || !models.GetAppSettings().IsArchiveEnabled() {
				continue
			}
			if _, err := m.exporter.ExportYesterday(); err != nil {
				log.Errorf("[Scheduler] History archive error: %v", err)
			}
		}
	}
}

// RunCatalogEvaluationOnce evaluates every active automated plan with a
// bounded worker pool. A single plan failing or losing its version race
// never aborts the batch.
func (m *Manager) RunCatalogEvaluationOnce() error {
	settings := models.GetAppSettings()
	if !settings.IsEngineEnabled() {
		log.Debug("[Scheduler] Engine disabled, skipping catalog evaluation")
		return nil
	}

	plans, err := m.plans.GetActiveAutomated()
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		return nil
	}

	batchID := uuid.New().String()
	started := time.Now()
	log.Infof("[Scheduler] Starting catalog evaluation batch %s (%d plans, %d workers)",
		batchID, len(plans), settings.GetWorkerCount())

	var changed, skipped, failed int64
	var counterMu sync.Mutex

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(settings.GetWorkerCount())

	for i := range plans {
		plan := plans[i]
		g.Go(func() error {
			result, err := m.calculator.Evaluate(&plan, pricing.EvalOptions{
				ChangeType: models.PriceChangeTypeAutomation,
				ActorType:  models.ActorTypeSystem,
				BatchID:    batchID,
			})

			counterMu.Lock()
			defer counterMu.Unlock()
			switch {
			case err != nil:
				failed++
				log.Errorf("[Scheduler] Evaluation failed for plan %d: %v", plan.ID, err)
			case result.Skipped:
				skipped++
			case result.PriceChanged:
				changed++
			}
			// Per-plan errors are counted, never propagated.
			return nil
		})
	}
	_ = g.Wait()

	log.Infof("[Scheduler] Batch %s finished in %s: %d changed, %d skipped, %d failed",
		batchID, time.Since(started).Round(time.Millisecond), changed, skipped, failed)
	return nil
}

// RunMarketRefreshOnce deactivates market conditions whose validity window
// has passed.
func (m *Manager) RunMarketRefreshOnce() error {
	count, err := m.conditions.DeactivateExpired(time.Now())
	if err != nil {
		return err
	}
	if count > 0 {
		log.Infof("[Scheduler] Deactivated %d expired market conditions", count)
	}
	return nil
}

// RunCompetitorPollOnce triggers a single competitor feed poll (admin use).
func (m *Manager) RunCompetitorPollOnce() {
	if m.competitor == nil {
		return
	}
	m.competitor.PollOnce(context.Background())
}
