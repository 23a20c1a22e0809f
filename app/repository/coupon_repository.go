package repository

import (
	"errors"

	"github.com/PricePilot/PricePilot/app/models"
	"gorm.io/gorm"
)

// ErrCouponCapReached is returned when a redemption loses the race for the
// last remaining use of a capped coupon.
var ErrCouponCapReached = errors.New("coupon redemption cap reached")

// couponRepository implements the CouponRepository interface
type couponRepository struct {
	db *gorm.DB
}

// NewCouponRepository creates a new coupon repository instance
func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepository{db: db}
}

// Create creates a new coupon
func (r *couponRepository) Create(coupon *models.Coupon) error {
	coupon.Code = models.NormalizeCouponCode(coupon.Code)
	return r.db.Create(coupon).Error
}

// GetByCode retrieves a coupon by its normalized code
func (r *couponRepository) GetByCode(code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.Preload("Plans").
		Where("code = ?", models.NormalizeCouponCode(code)).
		First(&coupon).Error
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// CountRedemptionsByUser returns how often the user already redeemed the coupon
func (r *couponRepository) CountRedemptionsByUser(couponID, userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.CouponRedemption{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	return count, err
}

// RedeemInTx increments the coupon's usage counters and records the
// redemption in one transaction. The guarded UPDATE re-checks the global
// cap at write time, which closes the read-then-increment race between two
// concurrent redemptions of a nearly exhausted coupon.
func (r *couponRepository) RedeemInTx(redemption *models.CouponRedemption) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Coupon{}).
			Where("id = ?", redemption.CouponID).
			Where("max_redemptions = 0 OR times_redeemed < max_redemptions").
			Updates(map[string]interface{}{
				"times_redeemed":       gorm.Expr("times_redeemed + 1"),
				"total_discount_given": gorm.Expr("total_discount_given + ?", redemption.DiscountAmount),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCouponCapReached
		}
		return tx.Create(redemption).Error
	})
}

// Update updates a coupon
func (r *couponRepository) Update(coupon *models.Coupon) error {
	return r.db.Save(coupon).Error
}
