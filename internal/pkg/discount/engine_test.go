package discount

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/PricePilot/PricePilot/app/models"
	"github.com/PricePilot/PricePilot/app/repository"
)

type fakeCoupons struct {
	coupons     map[string]*models.Coupon
	redemptions []models.CouponRedemption
	perUser     map[uint]map[uint]int64 // couponID -> userID -> count
	capReached  map[string]bool
}

func newFakeCoupons(coupons ...*models.Coupon) *fakeCoupons {
	f := &fakeCoupons{
		coupons:    make(map[string]*models.Coupon),
		perUser:    make(map[uint]map[uint]int64),
		capReached: make(map[string]bool),
	}
	for _, c := range coupons {
		f.coupons[c.Code] = c
	}
	return f
}

func (f *fakeCoupons) Create(c *models.Coupon) error { f.coupons[c.Code] = c; return nil }

func (f *fakeCoupons) GetByCode(code string) (*models.Coupon, error) {
	coupon, ok := f.coupons[models.NormalizeCouponCode(code)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *coupon
	return &copied, nil
}

func (f *fakeCoupons) CountRedemptionsByUser(couponID, userID uint) (int64, error) {
	return f.perUser[couponID][userID], nil
}

func (f *fakeCoupons) RedeemInTx(redemption *models.CouponRedemption) error {
	for _, c := range f.coupons {
		if c.ID == redemption.CouponID && f.capReached[c.Code] {
			return repository.ErrCouponCapReached
		}
	}
	f.redemptions = append(f.redemptions, *redemption)
	if f.perUser[redemption.CouponID] == nil {
		f.perUser[redemption.CouponID] = make(map[uint]int64)
	}
	f.perUser[redemption.CouponID][redemption.UserID]++
	return nil
}

func (f *fakeCoupons) Update(c *models.Coupon) error { return nil }

type fakeUsers struct {
	hasOrders map[uint]bool
}

func (f *fakeUsers) GetByID(id uint) (*models.User, error)           { return nil, gorm.ErrRecordNotFound }
func (f *fakeUsers) GetByAPIKeyHash(hash string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeUsers) HasPriorOrders(userID uint) (bool, error) { return f.hasOrders[userID], nil }
func (f *fakeUsers) TouchAPIKeyUsage(userID uint, at time.Time) error { return nil }

func save10() *models.Coupon {
	return &models.Coupon{
		ID:                1,
		Code:              "SAVE10",
		Type:              models.CouponTypePercentage,
		Value:             10,
		MaxDiscountAmount: 100,
		AllPlans:          true,
		IsActive:          true,
	}
}

func proPlan() *models.Plan {
	return &models.Plan{ID: 1, Name: "Pro", CurrentPrice: 1150, Currency: models.CurrencyINR}
}

func TestApplyCouponsPercentageWithCap(t *testing.T) {
	coupons := newFakeCoupons(save10())
	engine := NewEngine(coupons, &fakeUsers{})

	// 10% of 1150 is 115, capped at 100.
	result, err := engine.ApplyCoupons([]string{"SAVE10"}, 42, proPlan(), 1150)
	require.NoError(t, err)

	assert.Equal(t, 1150.0, result.OriginalAmount)
	assert.Equal(t, 1050.0, result.FinalAmount)
	assert.Equal(t, 100.0, result.TotalDiscount)
	require.Len(t, result.Applied, 1)
	assert.Equal(t, "SAVE10", result.Applied[0].Code)
	assert.Empty(t, result.Rejected)

	require.Len(t, coupons.redemptions, 1)
	assert.Equal(t, uint(42), coupons.redemptions[0].UserID)
	assert.Equal(t, 100.0, coupons.redemptions[0].DiscountAmount)
}

func TestApplyCouponsNormalizesCode(t *testing.T) {
	engine := NewEngine(newFakeCoupons(save10()), &fakeUsers{})

	result, err := engine.ApplyCoupons([]string{"  save10 "}, 1, proPlan(), 1000)
	require.NoError(t, err)

	require.Len(t, result.Applied, 1)
	assert.Equal(t, "SAVE10", result.Applied[0].Code)
}

func TestApplyCouponsUnknownCode(t *testing.T) {
	engine := NewEngine(newFakeCoupons(), &fakeUsers{})

	result, err := engine.ApplyCoupons([]string{"NOPE"}, 1, proPlan(), 1000)
	require.NoError(t, err)

	assert.Empty(t, result.Applied)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, CodeCouponNotFound, result.Rejected[0].Rejection.Code)
	assert.Equal(t, 1000.0, result.FinalAmount)
}

func TestApplyCouponsExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	expired := save10()
	expired.EndDate = &past
	engine := NewEngine(newFakeCoupons(expired), &fakeUsers{})

	result, err := engine.ApplyCoupons([]string{"SAVE10"}, 1, proPlan(), 1000)
	require.NoError(t, err)

	require.Len(t, result.Rejected, 1)
	assert.Equal(t, CodeCouponExpired, result.Rejected[0].Rejection.Code)
}

func TestApplyCouponsExhaustedGlobally(t *testing.T) {
	used := save10()
	used.MaxRedemptions = 5
	used.TimesRedeemed = 5
	engine := NewEngine(newFakeCoupons(used), &fakeUsers{})

	result, err := engine.ApplyCoupons([]string{"SAVE10"}, 1, proPlan(), 1000)
	require.NoError(t, err)

	require.Len(t, result.Rejected, 1)
	assert.Equal(t, CodeCouponExhausted, result.Rejected[0].Rejection.Code)
}

func TestApplyCouponsPerUserLimit(t *testing.T) {
	limited := save10()
	limited.MaxRedemptionsPerUser = 1
	coupons := newFakeCoupons(limited)
	coupons.perUser[1] = map[uint]int64{7: 1}
	engine := NewEngine(coupons, &fakeUsers{})

	result, err := engine.ApplyCoupons([]string{"SAVE10"}, 7, proPlan(), 1000)
	require.NoError(t, err)

	require.Len(t, result.Rejected, 1)
	assert.Equal(t, CodeCouponExhausted, result.Rejected[0].Rejection.Code)
}

func TestApplyCouponsNewUsersOnly(t *testing.T) {
	fresh := save10()
	fresh.ForNewUsersOnly = true
	engine := NewEngine(newFakeCoupons(fresh), &fakeUsers{hasOrders: map[uint]bool{7: true}})

	result, err := engine.ApplyCoupons([]string{"SAVE10"}, 7, proPlan(), 1000)
	require.NoError(t, err)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, CodeNotEligible, result.Rejected[0].Rejection.Code)

	// A user without prior orders passes the same gate.
	result, err = engine.ApplyCoupons([]string{"SAVE10"}, 8, proPlan(), 1000)
	require.NoError(t, err)
	assert.Len(t, result.Applied, 1)
}

func TestApplyCouponsPlanNotEligible(t *testing.T) {
	scoped := save10()
	scoped.AllPlans = false
	scoped.Plans = []models.Plan{{ID: 99}}
	engine := NewEngine(newFakeCoupons(scoped), &fakeUsers{})

	result, err := engine.ApplyCoupons([]string{"SAVE10"}, 1, proPlan(), 1000)
	require.NoError(t, err)

	require.Len(t, result.Rejected, 1)
	assert.Equal(t, CodePlanNotEligible, result.Rejected[0].Rejection.Code)
}

func TestApplyCouponsStackingOrderAndRunningAmount(t *testing.T) {
	first := &models.Coupon{
		ID: 1, Code: "TEN", Type: models.CouponTypePercentage, Value: 10,
		Stackable: true, AllPlans: true, IsActive: true,
	}
	second := &models.Coupon{
		ID: 2, Code: "FLAT50", Type: models.CouponTypeFixed, Value: 50,
		Stackable: true, AllPlans: true, IsActive: true,
	}
	engine := NewEngine(newFakeCoupons(first, second), &fakeUsers{})

	result, err := engine.ApplyCoupons([]string{"TEN", "FLAT50"}, 1, proPlan(), 1000)
	require.NoError(t, err)

	// 1000 -> 900 after 10%, then the fixed 50 applies to the running total.
	require.Len(t, result.Applied, 2)
	assert.Equal(t, 900.0, result.Applied[0].AmountAfter)
	assert.Equal(t, 900.0, result.Applied[1].AmountBefore)
	assert.Equal(t, 850.0, result.FinalAmount)
	assert.Equal(t, 150.0, result.TotalDiscount)
}

func TestApplyCouponsNonStackableAfterFirst(t *testing.T) {
	stackable := &models.Coupon{
		ID: 1, Code: "TEN", Type: models.CouponTypePercentage, Value: 10,
		Stackable: true, AllPlans: true, IsActive: true,
	}
	exclusiveDeal := &models.Coupon{
		ID: 2, Code: "SOLO", Type: models.CouponTypeFixed, Value: 200,
		Stackable: false, AllPlans: true, IsActive: true,
	}
	engine := NewEngine(newFakeCoupons(stackable, exclusiveDeal), &fakeUsers{})

	result, err := engine.ApplyCoupons([]string{"TEN", "SOLO"}, 1, proPlan(), 1000)
	require.NoError(t, err)

	require.Len(t, result.Applied, 1)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, CodeNotStackable, result.Rejected[0].Rejection.Code)
	assert.Equal(t, 900.0, result.FinalAmount)

	// The non-stackable coupon leads when it comes first.
	engine = NewEngine(newFakeCoupons(stackable, exclusiveDeal), &fakeUsers{})
	result, err = engine.ApplyCoupons([]string{"SOLO", "TEN"}, 1, proPlan(), 1000)
	require.NoError(t, err)
	require.Len(t, result.Applied, 2)
	assert.Equal(t, 720.0, result.FinalAmount) // 1000 - 200, then -10%
}

func TestApplyCouponsConcurrentCapLoss(t *testing.T) {
	coupons := newFakeCoupons(save10())
	coupons.capReached["SAVE10"] = true
	engine := NewEngine(coupons, &fakeUsers{})

	result, err := engine.ApplyCoupons([]string{"SAVE10"}, 1, proPlan(), 1000)
	require.NoError(t, err)

	// The pre-check passed but the transactional redeem lost the race.
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, CodeCouponExhausted, result.Rejected[0].Rejection.Code)
	assert.Empty(t, result.Applied)
}

func TestApplyCouponsDiscountNeverExceedsAmount(t *testing.T) {
	big := &models.Coupon{
		ID: 1, Code: "BIG", Type: models.CouponTypeFixed, Value: 5000,
		AllPlans: true, IsActive: true,
	}
	engine := NewEngine(newFakeCoupons(big), &fakeUsers{})

	result, err := engine.ApplyCoupons([]string{"BIG"}, 1, proPlan(), 1000)
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.FinalAmount)
	assert.Equal(t, 1000.0, result.TotalDiscount)
}

func TestValidateCouponDoesNotRedeem(t *testing.T) {
	coupons := newFakeCoupons(save10())
	engine := NewEngine(coupons, &fakeUsers{})

	validation, rejection, err := engine.ValidateCoupon("SAVE10", 1, proPlan(), 1150)
	require.NoError(t, err)
	require.Nil(t, rejection)

	assert.Equal(t, 100.0, validation.DiscountAmount)
	assert.Equal(t, 1050.0, validation.FinalAmount)
	assert.Empty(t, coupons.redemptions)
}

func TestValidateCouponInactiveIsNotFound(t *testing.T) {
	inactive := save10()
	inactive.IsActive = false
	engine := NewEngine(newFakeCoupons(inactive), &fakeUsers{})

	_, rejection, err := engine.ValidateCoupon("SAVE10", 1, proPlan(), 1000)
	require.NoError(t, err)
	require.NotNil(t, rejection)
	assert.Equal(t, CodeCouponNotFound, rejection.Code)
}
