package apiv1

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/PricePilot/PricePilot/app/models"
	"github.com/PricePilot/PricePilot/app/repository"
	"github.com/PricePilot/PricePilot/internal/pkg/discount"
	"github.com/PricePilot/PricePilot/internal/pkg/history"
	"github.com/PricePilot/PricePilot/internal/pkg/market"
	"github.com/PricePilot/PricePilot/internal/pkg/pricecache"
	"github.com/PricePilot/PricePilot/internal/pkg/pricing"
	"github.com/PricePilot/PricePilot/internal/pkg/scheduler"
	"github.com/PricePilot/PricePilot/internal/pkg/usercontext"
)

// APIServer carries the engine components behind the v1 endpoints
type APIServer struct {
	calculator *pricing.Calculator
	discounts  *discount.Engine
	ledger     *history.Ledger
	resolver   *market.Resolver
	prices     *pricecache.Cache
	validate   *validator.Validate
}

// NewAPIServer creates a new API server instance
func NewAPIServer(calculator *pricing.Calculator, discounts *discount.Engine, ledger *history.Ledger, resolver *market.Resolver, prices *pricecache.Cache) *APIServer {
	return &APIServer{
		calculator: calculator,
		discounts:  discounts,
		ledger:     ledger,
		resolver:   resolver,
		prices:     prices,
		validate:   validator.New(),
	}
}

// Pong is the ping response payload
type Pong struct {
	Ping string `json:"ping"`
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// EvaluateRequest is the optional body of POST /plans/:id/evaluate.
type EvaluateRequest struct {
	// SeedCurrent compounds the pipeline on top of the current price
	// instead of re-deriving from the base price.
	SeedCurrent bool `json:"seed_current"`
	// Overrides pin rule condition fields, e.g. {"demand_level": "high"}.
	Overrides map[string]string `json:"overrides"`
}

// PostEvaluatePlan runs the full pricing pipeline for one plan on demand
// and returns the evaluation result.
func (s *APIServer) PostEvaluatePlan(c *fiber.Ctx) error {
	plan, rendered := s.planFromParams(c)
	if plan == nil {
		return rendered
	}

	var req EvaluateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
		}
	}

	result, err := s.calculator.Evaluate(plan, pricing.EvalOptions{
		SeedCurrent: req.SeedCurrent,
		ChangeType:  models.PriceChangeTypeManual,
		ActorType:   models.ActorTypeAdmin,
		ActorID:     usercontext.GetUserID(c),
		Overrides:   req.Overrides,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Evaluation failed"})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// GetPlanPrice returns the plan's current price together with the resolved
// market context. Quotes are served from the short-TTL price cache when
// possible; a hit skips the plan and condition lookups entirely, and the
// calculator invalidates the plan's entries after every committed change.
func (s *APIServer) GetPlanPrice(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid plan id"})
	}

	quoteCtx := map[string]string{}
	if s.prices != nil {
		if entry := s.prices.Get(uint(id), quoteCtx); entry != nil {
			return c.Status(fiber.StatusOK).JSON(entry)
		}
	}

	plan, rendered := s.planFromParams(c)
	if plan == nil {
		return rendered
	}

	resolution := s.resolver.Resolve(plan, time.Now())
	entry := pricecache.Entry{
		PlanID:     plan.ID,
		Price:      plan.CurrentPrice,
		Currency:   plan.Currency,
		Multiplier: resolution.Multiplier,
	}
	if s.prices != nil {
		// Best effort: a cache write failure only costs the next caller a
		// recompute.
		_ = s.prices.Set(plan.ID, quoteCtx, entry)
	}

	return c.Status(fiber.StatusOK).JSON(entry)
}

// ApplyDiscountsRequest is the body of POST /discounts/apply
type ApplyDiscountsRequest struct {
	Codes  []string `json:"codes" validate:"required,min=1,dive,required"`
	UserID uint     `json:"user_id"`
	PlanID uint     `json:"plan_id" validate:"required"`
	Amount float64  `json:"amount" validate:"omitempty,gt=0"`
}

// PostApplyDiscounts validates and applies a coupon stack against a plan
// price. Rejected codes are reported per code, valid ones still apply.
func (s *APIServer) PostApplyDiscounts(c *fiber.Ctx) error {
	var req ApplyDiscountsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	planRepo := repository.GetGlobalFactory().GetPlanRepository()
	plan, err := planRepo.GetByID(req.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Plan not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Plan lookup failed"})
	}

	userID := req.UserID
	if userID == 0 {
		userID = usercontext.GetUserID(c)
	}

	amount := req.Amount
	if amount == 0 {
		amount = plan.CurrentPrice
	}

	result, err := s.discounts.ApplyCoupons(req.Codes, userID, plan, amount)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Discount application failed"})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// GetPlanHistory returns one page of price history with aggregates.
func (s *APIServer) GetPlanHistory(c *fiber.Ctx) error {
	plan, rendered := s.planFromParams(c)
	if plan == nil {
		return rendered
	}

	query := repository.PriceHistoryQuery{
		PlanID:     plan.ID,
		ChangeType: c.Query("change_type"),
		Page:       c.QueryInt("page", 1),
		PageSize:   c.QueryInt("page_size", 50),
	}

	if raw := c.Query("from"); raw != "" {
		from, err := parseHistoryTime(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid 'from' timestamp"})
		}
		query.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := parseHistoryTime(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid 'to' timestamp"})
		}
		query.To = &to
	}

	page, err := s.ledger.GetHistory(query)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "History query failed"})
	}

	return c.Status(fiber.StatusOK).JSON(page)
}

// GetEngineStatus reports the scheduler state.
func (s *APIServer) GetEngineStatus(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(scheduler.GetManager().GetStatus())
}

// PostEngineStart starts the scheduler (admin).
func (s *APIServer) PostEngineStart(c *fiber.Ctx) error {
	scheduler.GetManager().Start()
	return c.Status(fiber.StatusOK).JSON(scheduler.GetManager().GetStatus())
}

// PostEngineStop stops the scheduler and waits for in-flight work (admin).
func (s *APIServer) PostEngineStop(c *fiber.Ctx) error {
	scheduler.GetManager().Stop()
	return c.Status(fiber.StatusOK).JSON(scheduler.GetManager().GetStatus())
}

// planFromParams loads the plan addressed by the :id route parameter. A nil
// plan means the error response has already been rendered.
func (s *APIServer) planFromParams(c *fiber.Ctx) (*models.Plan, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid plan id"})
	}

	plan, err := repository.GetGlobalFactory().GetPlanRepository().GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Plan not found"})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Plan lookup failed"})
	}
	return plan, nil
}

// parseHistoryTime accepts RFC 3339 or plain dates.
func parseHistoryTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
