package repository

import (
	"time"

	"github.com/PricePilot/PricePilot/app/models"
	"gorm.io/gorm"
)

// PlanRepository defines the interface for plan-related database operations
type PlanRepository interface {
	Create(plan *models.Plan) error
	GetByID(id uint) (*models.Plan, error)
	GetBySlug(slug string) (*models.Plan, error)
	GetActiveAutomated() ([]models.Plan, error)
	List(offset, limit int) ([]models.Plan, error)
	Count() (int64, error)
	Update(plan *models.Plan) error
	// UpdatePriceChecked writes a new current price guarded by the plan's
	// optimistic lock version and records the price history row in the
	// same transaction. It returns ErrVersionConflict when the row was
	// modified since the version was read; on conflict nothing is written.
	UpdatePriceChecked(planID uint, version uint, newPrice float64, updatedAt time.Time, entry *models.PriceHistory) error
}

// MarketConditionRepository defines the interface for market condition operations
type MarketConditionRepository interface {
	Create(condition *models.MarketCondition) error
	GetByID(id uint) (*models.MarketCondition, error)
	GetActiveAt(t time.Time) ([]models.MarketCondition, error)
	GetBySource(source string) ([]models.MarketCondition, error)
	Update(condition *models.MarketCondition) error
	UpsertCompetitorCondition(condition *models.MarketCondition) error
	DeactivateExpired(now time.Time) (int64, error)
}

// AutomationRuleRepository defines the interface for automation rule operations
type AutomationRuleRepository interface {
	Create(rule *models.AutomationRule) error
	GetByID(id uint) (*models.AutomationRule, error)
	GetEnabledForCategory(categoryID uint) ([]models.AutomationRule, error)
	Update(rule *models.AutomationRule) error
	RecordExecution(ruleID uint, at time.Time) error
}

// CouponRepository defines the interface for coupon operations
type CouponRepository interface {
	Create(coupon *models.Coupon) error
	GetByCode(code string) (*models.Coupon, error)
	CountRedemptionsByUser(couponID, userID uint) (int64, error)
	// RedeemInTx atomically re-checks the global usage cap and records the
	// redemption inside one transaction. It returns ErrCouponCapReached
	// when a concurrent redemption exhausted the coupon first.
	RedeemInTx(redemption *models.CouponRedemption) error
	Update(coupon *models.Coupon) error
}

// PriceHistoryQuery is the typed filter for history range queries.
type PriceHistoryQuery struct {
	PlanID     uint
	From       *time.Time
	To         *time.Time
	ChangeType string
	Page       int
	PageSize   int
}

// PriceHistoryStats aggregates change percentages over a query window.
type PriceHistoryStats struct {
	Count            int64
	AvgChangePercent float64
	MinChangePercent float64
	MaxChangePercent float64
}

// PriceHistoryRepository is append-only: it deliberately exposes no update
// or delete operations.
type PriceHistoryRepository interface {
	// Rows are written by PlanRepository.UpdatePriceChecked inside the
	// price-write transaction; this repository only reads them.
	Query(q PriceHistoryQuery) ([]models.PriceHistory, int64, error)
	Stats(q PriceHistoryQuery) (*PriceHistoryStats, error)
	GetLatestForPlan(planID uint) (*models.PriceHistory, error)
	GetForDay(day time.Time) ([]models.PriceHistory, error)
}

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	HasPriorOrders(userID uint) (bool, error)
	TouchAPIKeyUsage(userID uint, at time.Time) error
}

// SettingRepository defines the interface for application settings
type SettingRepository interface {
	Get() (*models.AppSettings, error)
	Save(settings *models.AppSettings) error
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Plan            PlanRepository
	MarketCondition MarketConditionRepository
	AutomationRule  AutomationRuleRepository
	Coupon          CouponRepository
	PriceHistory    PriceHistoryRepository
	User            UserRepository
	Setting         SettingRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Plan:            NewPlanRepository(db),
		MarketCondition: NewMarketConditionRepository(db),
		AutomationRule:  NewAutomationRuleRepository(db),
		Coupon:          NewCouponRepository(db),
		PriceHistory:    NewPriceHistoryRepository(db),
		User:            NewUserRepository(db),
		Setting:         NewSettingRepository(db),
	}
}
