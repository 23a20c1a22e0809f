package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_USER       = "user"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

// User is the account contract this engine consumes: identity for coupon
// redemption, the prior-order flag for new-user eligibility, and an API key
// hash for the admin API. Account lifecycle lives in the account service.
type User struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email           string         `gorm:"uniqueIndex;type:varchar(200) CHARACTER SET utf8 COLLATE utf8_bin" json:"email" validate:"required,email,min=5,max=200"`
	Password        string         `gorm:"type:text" json:"-" validate:"required,min=6"`
	Role            string         `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	Status          string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	HasOrders       bool           `gorm:"default:false" json:"has_orders"`
	APIKeyHash      string         `gorm:"type:varchar(64);default:'';index" json:"-"`
	APIKeyLastUsed  *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	LastLoginAt     *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// HashAPIKey returns the hex SHA-256 digest under which API keys are stored.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// IsNewCustomer reports whether the user qualifies for new-user-only
// coupons (no prior orders on record).
func (u *User) IsNewCustomer() bool {
	return !u.HasOrders
}
