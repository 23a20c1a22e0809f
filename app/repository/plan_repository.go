package repository

import (
	"errors"
	"time"

	"github.com/PricePilot/PricePilot/app/models"
	"gorm.io/gorm"
)

// ErrVersionConflict is returned when an optimistic-lock guarded write lost
// against a concurrent update of the same plan row.
var ErrVersionConflict = errors.New("plan was modified concurrently")

// planRepository implements the PlanRepository interface
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// Create creates a new plan in the database
func (r *planRepository) Create(plan *models.Plan) error {
	return r.db.Create(plan).Error
}

// GetByID retrieves a plan by its ID
func (r *planRepository) GetByID(id uint) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.First(&plan, id).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetBySlug retrieves a plan by its slug
func (r *planRepository) GetBySlug(slug string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.Where("slug = ?", slug).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetActiveAutomated returns all active plans with automation enabled,
// the population of a scheduled catalog evaluation.
func (r *planRepository) GetActiveAutomated() ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.Where("is_active = ? AND automation_enabled = ?", true, true).
		Order("id ASC").
		Find(&plans).Error
	return plans, err
}

// List returns plans with pagination
func (r *planRepository) List(offset, limit int) ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.Offset(offset).Limit(limit).Order("id ASC").Find(&plans).Error
	return plans, err
}

// Count returns the total number of plans
func (r *planRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Plan{}).Count(&count).Error
	return count, err
}

// Update updates a plan
func (r *planRepository) Update(plan *models.Plan) error {
	return r.db.Save(plan).Error
}

// UpdatePriceChecked performs the compare-and-swap price write and appends
// the history row in one transaction. The WHERE clause on lock_version
// makes concurrent writers of the same row fail with RowsAffected == 0
// instead of silently overwriting each other; a failed history insert rolls
// the price change back, so a committed change always has its audit row.
func (r *planRepository) UpdatePriceChecked(planID uint, version uint, newPrice float64, updatedAt time.Time, entry *models.PriceHistory) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Plan{}).
			Where("id = ? AND lock_version = ?", planID, version).
			Updates(map[string]interface{}{
				"current_price":      newPrice,
				"lock_version":       version + 1,
				"last_price_update":  updatedAt,
				"price_update_count": gorm.Expr("price_update_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		if entry == nil {
			return nil
		}
		return tx.Create(entry).Error
	})
}
