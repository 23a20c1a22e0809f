package repository

import (
	"strings"
	"time"

	"github.com/PricePilot/PricePilot/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByAPIKeyHash resolves an API key hash to its user.
func (r *userRepository) GetByAPIKeyHash(hash string) (*models.User, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	err := r.db.Where("api_key_hash = ? AND api_key_hash <> ''", trimmed).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// HasPriorOrders reports the prior-order flag used for new-user coupon
// eligibility.
func (r *userRepository) HasPriorOrders(userID uint) (bool, error) {
	var user models.User
	if err := r.db.Select("has_orders").First(&user, userID).Error; err != nil {
		return false, err
	}
	return user.HasOrders, nil
}

// TouchAPIKeyUsage refreshes the last-used timestamp best-effort
func (r *userRepository) TouchAPIKeyUsage(userID uint, at time.Time) error {
	return r.db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("api_key_last_used", at).Error
}
