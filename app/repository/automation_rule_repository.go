package repository

import (
	"time"

	"github.com/PricePilot/PricePilot/app/models"
	"gorm.io/gorm"
)

// automationRuleRepository implements the AutomationRuleRepository interface
type automationRuleRepository struct {
	db *gorm.DB
}

// NewAutomationRuleRepository creates a new automation rule repository instance
func NewAutomationRuleRepository(db *gorm.DB) AutomationRuleRepository {
	return &automationRuleRepository{db: db}
}

// Create creates a new automation rule
func (r *automationRuleRepository) Create(rule *models.AutomationRule) error {
	return r.db.Create(rule).Error
}

// GetByID retrieves an automation rule by ID
func (r *automationRuleRepository) GetByID(id uint) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	err := r.db.First(&rule, id).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// GetEnabledForCategory returns enabled rules applicable to the category
// (global rules included), sorted descending by priority for evaluation.
func (r *automationRuleRepository) GetEnabledForCategory(categoryID uint) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	err := r.db.Where("enabled = ?", true).
		Where("category_id = 0 OR category_id = ?", categoryID).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	return rules, err
}

// Update updates an automation rule
func (r *automationRuleRepository) Update(rule *models.AutomationRule) error {
	return r.db.Save(rule).Error
}

// RecordExecution bumps the rule's execution statistics. The counter update
// is expressed in SQL so concurrent evaluations do not lose increments.
func (r *automationRuleRepository) RecordExecution(ruleID uint, at time.Time) error {
	return r.db.Model(&models.AutomationRule{}).
		Where("id = ?", ruleID).
		Updates(map[string]interface{}{
			"execution_count": gorm.Expr("execution_count + 1"),
			"last_run_at":     at,
		}).Error
}
