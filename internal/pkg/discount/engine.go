package discount

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/PricePilot/PricePilot/app/models"
	"github.com/PricePilot/PricePilot/app/repository"
	metrics "github.com/PricePilot/PricePilot/internal/pkg/metrics/counter"
)

// Rejection codes surfaced to callers. These are stable API values.
const (
	CodeCouponNotFound  = "coupon_not_found"
	CodeCouponExpired   = "coupon_expired"
	CodeCouponExhausted = "coupon_exhausted"
	CodeNotEligible     = "not_eligible"
	CodePlanNotEligible = "plan_not_eligible"
	CodeNotStackable    = "not_stackable"
)

// Rejection is a typed validation failure. It is a value handed back to the
// caller with a structured reason, not an error that unwinds the stack.
type Rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func reject(code, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation is the successful outcome of validating one coupon against an
// amount.
type Validation struct {
	Coupon         *models.Coupon `json:"-"`
	Code           string         `json:"code"`
	DiscountAmount float64        `json:"discount_amount"`
	FinalAmount    float64        `json:"final_amount"`
}

// AppliedCoupon records one successful application within a stack.
type AppliedCoupon struct {
	Code           string  `json:"code"`
	DiscountAmount float64 `json:"discount_amount"`
	AmountBefore   float64 `json:"amount_before"`
	AmountAfter    float64 `json:"amount_after"`
}

// CodeRejection pairs a submitted code with its rejection.
type CodeRejection struct {
	Code      string    `json:"code"`
	Rejection Rejection `json:"rejection"`
}

// StackResult is the outcome of applying a list of coupon codes. Partial
// success is allowed: valid coupons apply even when others fail.
type StackResult struct {
	OriginalAmount float64         `json:"original_amount"`
	FinalAmount    float64         `json:"final_amount"`
	TotalDiscount  float64         `json:"total_discount"`
	Applied        []AppliedCoupon `json:"applied"`
	Rejected       []CodeRejection `json:"rejected"`
}

// Engine validates and stacks coupons against a price.
type Engine struct {
	coupons repository.CouponRepository
	users   repository.UserRepository
}

// NewEngine creates a discount engine.
func NewEngine(coupons repository.CouponRepository, users repository.UserRepository) *Engine {
	return &Engine{coupons: coupons, users: users}
}

// ValidateCoupon checks one coupon against a user, plan and amount without
// redeeming it. It returns either a successful validation or a typed
// rejection; the error return is reserved for infrastructure failures.
func (e *Engine) ValidateCoupon(code string, userID uint, plan *models.Plan, amount float64) (*Validation, *Rejection, error) {
	coupon, err := e.coupons.GetByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reject(CodeCouponNotFound, "coupon %q does not exist", models.NormalizeCouponCode(code)), nil
		}
		return nil, nil, fmt.Errorf("coupon lookup: %w", err)
	}
	if !coupon.IsActive {
		return nil, reject(CodeCouponNotFound, "coupon %q does not exist", coupon.Code), nil
	}

	if rej, err := e.checkRedeemable(coupon, userID, plan, time.Now()); rej != nil || err != nil {
		return nil, rej, err
	}

	validation := e.computeDiscount(coupon, amount)

	if err := metrics.AddCouponValidated(coupon.ID); err != nil {
		log.Debugf("[DiscountEngine] Failed to count validation of coupon %s: %v", coupon.Code, err)
	}

	return validation, nil, nil
}

// ApplyCoupons processes codes in caller-given order against the amount.
// After the first applied coupon, every later coupon must be stackable.
// Each successful application reduces the running amount before the next
// code is evaluated, and redeems transactionally so concurrent checkouts
// cannot over-redeem a capped coupon.
func (e *Engine) ApplyCoupons(codes []string, userID uint, plan *models.Plan, amount float64) (*StackResult, error) {
	result := &StackResult{
		OriginalAmount: amount,
		FinalAmount:    amount,
	}

	for _, raw := range codes {
		code := models.NormalizeCouponCode(raw)

		coupon, err := e.coupons.GetByCode(code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result.Rejected = append(result.Rejected, CodeRejection{Code: code, Rejection: *reject(CodeCouponNotFound, "coupon %q does not exist", code)})
				continue
			}
			return nil, fmt.Errorf("coupon lookup: %w", err)
		}
		if !coupon.IsActive {
			result.Rejected = append(result.Rejected, CodeRejection{Code: code, Rejection: *reject(CodeCouponNotFound, "coupon %q does not exist", code)})
			continue
		}

		if len(result.Applied) > 0 && !coupon.Stackable {
			result.Rejected = append(result.Rejected, CodeRejection{Code: code, Rejection: *reject(CodeNotStackable, "coupon %q cannot be combined with other discounts", code)})
			continue
		}

		rej, err := e.checkRedeemable(coupon, userID, plan, time.Now())
		if err != nil {
			return nil, err
		}
		if rej != nil {
			result.Rejected = append(result.Rejected, CodeRejection{Code: code, Rejection: *rej})
			continue
		}

		validation := e.computeDiscount(coupon, result.FinalAmount)
		if validation.DiscountAmount <= 0 {
			// A coupon that cannot discount anything (e.g. fixed amount on
			// an already-zero total) is not redeemed.
			continue
		}

		redemption := &models.CouponRedemption{
			CouponID:       coupon.ID,
			UserID:         userID,
			PlanID:         plan.ID,
			AmountBefore:   result.FinalAmount,
			DiscountAmount: validation.DiscountAmount,
		}
		if err := e.coupons.RedeemInTx(redemption); err != nil {
			if errors.Is(err, repository.ErrCouponCapReached) {
				result.Rejected = append(result.Rejected, CodeRejection{Code: code, Rejection: *reject(CodeCouponExhausted, "coupon %q has no redemptions left", code)})
				continue
			}
			return nil, fmt.Errorf("redeem coupon %s: %w", code, err)
		}

		result.Applied = append(result.Applied, AppliedCoupon{
			Code:           coupon.Code,
			DiscountAmount: validation.DiscountAmount,
			AmountBefore:   result.FinalAmount,
			AmountAfter:    validation.FinalAmount,
		})
		result.TotalDiscount += validation.DiscountAmount
		result.FinalAmount = validation.FinalAmount
	}

	return result, nil
}

// checkRedeemable runs the eligibility gauntlet shared by validation and
// application. It returns a rejection for business failures and an error
// only for infrastructure failures.
func (e *Engine) checkRedeemable(coupon *models.Coupon, userID uint, plan *models.Plan, now time.Time) (*Rejection, error) {
	if !coupon.IsWithinValidity(now) {
		return reject(CodeCouponExpired, "coupon %q is outside its validity window", coupon.Code), nil
	}

	if coupon.IsExhausted() {
		return reject(CodeCouponExhausted, "coupon %q has no redemptions left", coupon.Code), nil
	}

	if coupon.MaxRedemptionsPerUser > 0 {
		used, err := e.coupons.CountRedemptionsByUser(coupon.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("per-user redemption count: %w", err)
		}
		if used >= int64(coupon.MaxRedemptionsPerUser) {
			return reject(CodeCouponExhausted, "coupon %q was already used the maximum number of times", coupon.Code), nil
		}
	}

	if coupon.ForNewUsersOnly {
		hasOrders, err := e.users.HasPriorOrders(userID)
		if err != nil {
			return nil, fmt.Errorf("prior-order check: %w", err)
		}
		if hasOrders {
			return reject(CodeNotEligible, "coupon %q is limited to new customers", coupon.Code), nil
		}
	}

	if !coupon.AppliesToPlan(plan) {
		return reject(CodePlanNotEligible, "coupon %q is not valid for plan %q", coupon.Code, plan.Name), nil
	}

	return nil, nil
}

// computeDiscount caps the raw discount at MaxDiscountAmount and clamps it
// so the final amount never drops below zero.
func (e *Engine) computeDiscount(coupon *models.Coupon, amount float64) *Validation {
	discount := coupon.RawDiscount(amount)
	if coupon.MaxDiscountAmount > 0 && discount > coupon.MaxDiscountAmount {
		discount = coupon.MaxDiscountAmount
	}
	if discount > amount {
		discount = amount
	}
	if discount < 0 {
		discount = 0
	}

	return &Validation{
		Coupon:         coupon,
		Code:           coupon.Code,
		DiscountAmount: discount,
		FinalAmount:    amount - discount,
	}
}
