package repository

import (
	"time"

	"github.com/PricePilot/PricePilot/app/models"
	"gorm.io/gorm"
)

const defaultHistoryPageSize = 50
const maxHistoryPageSize = 500

// priceHistoryRepository implements the PriceHistoryRepository interface.
// Rows arrive through the plan repository's price-write transaction; this
// side only reads, and no update or delete method exists.
type priceHistoryRepository struct {
	db *gorm.DB
}

// NewPriceHistoryRepository creates a new price history repository instance
func NewPriceHistoryRepository(db *gorm.DB) PriceHistoryRepository {
	return &priceHistoryRepository{db: db}
}

func (r *priceHistoryRepository) scoped(q PriceHistoryQuery) *gorm.DB {
	tx := r.db.Model(&models.PriceHistory{})
	if q.PlanID != 0 {
		tx = tx.Where("plan_id = ?", q.PlanID)
	}
	if q.From != nil {
		tx = tx.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("created_at <= ?", *q.To)
	}
	if q.ChangeType != "" {
		tx = tx.Where("change_type = ?", q.ChangeType)
	}
	return tx
}

// Query returns history rows matching the filter, newest first, plus the
// total row count for pagination.
func (r *priceHistoryRepository) Query(q PriceHistoryQuery) ([]models.PriceHistory, int64, error) {
	var total int64
	if err := r.scoped(q).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}
	if pageSize > maxHistoryPageSize {
		pageSize = maxHistoryPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	var entries []models.PriceHistory
	err := r.scoped(q).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	return entries, total, err
}

// Stats aggregates change percentages over the query window
func (r *priceHistoryRepository) Stats(q PriceHistoryQuery) (*PriceHistoryStats, error) {
	var stats PriceHistoryStats
	row := r.scoped(q).
		Select("COUNT(*) AS count, COALESCE(AVG(change_percent), 0) AS avg_change_percent, COALESCE(MIN(change_percent), 0) AS min_change_percent, COALESCE(MAX(change_percent), 0) AS max_change_percent").
		Row()
	if err := row.Scan(&stats.Count, &stats.AvgChangePercent, &stats.MinChangePercent, &stats.MaxChangePercent); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetLatestForPlan returns the most recent history row for a plan
func (r *priceHistoryRepository) GetLatestForPlan(planID uint) (*models.PriceHistory, error) {
	var entry models.PriceHistory
	err := r.db.Where("plan_id = ?", planID).
		Order("created_at DESC, id DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetForDay returns all history rows written on the given calendar day,
// used by the archive exporter.
func (r *priceHistoryRepository) GetForDay(day time.Time) ([]models.PriceHistory, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var entries []models.PriceHistory
	err := r.db.Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}
