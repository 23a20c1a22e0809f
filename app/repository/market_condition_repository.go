package repository

import (
	"time"

	"github.com/PricePilot/PricePilot/app/models"
	"gorm.io/gorm"
)

// marketConditionRepository implements the MarketConditionRepository interface
type marketConditionRepository struct {
	db *gorm.DB
}

// NewMarketConditionRepository creates a new market condition repository instance
func NewMarketConditionRepository(db *gorm.DB) MarketConditionRepository {
	return &marketConditionRepository{db: db}
}

// Create creates a new market condition
func (r *marketConditionRepository) Create(condition *models.MarketCondition) error {
	return r.db.Create(condition).Error
}

// GetByID retrieves a market condition by ID
func (r *marketConditionRepository) GetByID(id uint) (*models.MarketCondition, error) {
	var condition models.MarketCondition
	err := r.db.Preload("Plans").First(&condition, id).Error
	if err != nil {
		return nil, err
	}
	return &condition, nil
}

// GetActiveAt returns all active conditions whose validity window contains t,
// ordered ascending by priority so multipliers apply in a stable order.
func (r *marketConditionRepository) GetActiveAt(t time.Time) ([]models.MarketCondition, error) {
	var conditions []models.MarketCondition
	err := r.db.Preload("Plans").
		Where("is_active = ?", true).
		Where("start_date IS NULL OR start_date <= ?", t).
		Where("end_date IS NULL OR end_date >= ?", t).
		Order("priority ASC, id ASC").
		Find(&conditions).Error
	return conditions, err
}

// GetBySource returns all conditions created by the given source
func (r *marketConditionRepository) GetBySource(source string) ([]models.MarketCondition, error) {
	var conditions []models.MarketCondition
	err := r.db.Where("source = ?", source).Find(&conditions).Error
	return conditions, err
}

// Update updates a market condition
func (r *marketConditionRepository) Update(condition *models.MarketCondition) error {
	return r.db.Save(condition).Error
}

// UpsertCompetitorCondition creates or refreshes the competitor-poll
// condition identified by its name. Competitor polling reuses one row per
// competitor source instead of piling up expired rows.
func (r *marketConditionRepository) UpsertCompetitorCondition(condition *models.MarketCondition) error {
	var existing models.MarketCondition
	err := r.db.Where("name = ? AND source = ?", condition.Name, models.MarketConditionSourceCompetitorPoll).
		First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			condition.Source = models.MarketConditionSourceCompetitorPoll
			return r.db.Create(condition).Error
		}
		return err
	}

	existing.Multiplier = condition.Multiplier
	existing.StartDate = condition.StartDate
	existing.EndDate = condition.EndDate
	existing.Priority = condition.Priority
	existing.IsActive = true
	return r.db.Save(&existing).Error
}

// DeactivateExpired flags conditions whose window has fully passed
func (r *marketConditionRepository) DeactivateExpired(now time.Time) (int64, error) {
	res := r.db.Model(&models.MarketCondition{}).
		Where("is_active = ? AND end_date IS NOT NULL AND end_date < ?", true, now).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
