package controllers

import (
	"context"
	"strings"
	"time"

	"fakturierung-recurring/billing"
	"fakturierung-recurring/database"
	"fakturierung-recurring/middlewares"
	"fakturierung-recurring/models"
	"fakturierung-recurring/recurring"
	"fakturierung-recurring/schedule"
	"fakturierung-recurring/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RecurringCreateDTO is the wire form of recurring.CreateInput. Dates are
// calendar dates (YYYY-MM-DD).
type RecurringCreateDTO struct {
	ClientID      string                 `json:"client_id"`
	Frequency     string                 `json:"frequency"`
	StartDate     string                 `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       *string                `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Currency      string                 `json:"currency"`
	DiscountType  string                 `json:"discount_type"`
	DiscountValue decimal.Decimal        `json:"discount_value"`
	TaxRate       decimal.Decimal        `json:"tax_rate"`
	DueDays       int                    `json:"due_days"`
	AutoSend      bool                   `json:"auto_send"`
	Notes         *string                `json:"notes"`
	Items         []recurring.ItemInput  `json:"items"`
	Groups        []recurring.GroupInput `json:"groups"`
}

type RecurringUpdateDTO struct {
	ClientID      *string                `json:"client_id"`
	Frequency     *string                `json:"frequency"`
	StartDate     *string                `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	NextRunAt     *string                `json:"next_run_at" validate:"omitempty,datetime=2006-01-02"`
	EndDate       *string                `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	ClearEndDate  bool                   `json:"clear_end_date"`
	Currency      *string                `json:"currency"`
	DiscountType  *string                `json:"discount_type"`
	DiscountValue *decimal.Decimal       `json:"discount_value"`
	TaxRate       *decimal.Decimal       `json:"tax_rate"`
	DueDays       *int                   `json:"due_days"`
	AutoSend      *bool                  `json:"auto_send"`
	Notes         *string                `json:"notes"`
	Items         []recurring.ItemInput  `json:"items"`
	Groups        []recurring.GroupInput `json:"groups"`
}

// RecurringHandler serves the recurring definition routes. Every request
// gets a Service bound to its own transaction; the batch trigger uses the
// shared Processor.
type RecurringHandler struct {
	generator *recurring.Generator
	processor *recurring.Processor
	log       zerolog.Logger
	now       func() time.Time
}

func NewRecurringHandler(generator *recurring.Generator, processor *recurring.Processor, log zerolog.Logger) *RecurringHandler {
	return &RecurringHandler{
		generator: generator,
		processor: processor,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *RecurringHandler) service(c *fiber.Ctx) (*recurring.Service, string, error) {
	accountID, err := middlewares.AccountID(c)
	if err != nil {
		return nil, "", err
	}
	db, err := database.GetDB(c)
	if err != nil {
		return nil, "", err
	}
	return recurring.NewService(database.NewRecurringStore(db), h.generator, h.log), accountID, nil
}

func (h *RecurringHandler) Create(c *fiber.Ctx) error {
	var dto RecurringCreateDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}
	in, err := dto.toInput()
	if err != nil {
		return err
	}

	svc, accountID, err := h.service(c)
	if err != nil {
		return err
	}
	def, err := svc.Create(c.UserContext(), accountID, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(def)
}

// List query: status, page, limit.
func (h *RecurringHandler) List(c *fiber.Ctx) error {
	svc, accountID, err := h.service(c)
	if err != nil {
		return err
	}

	page := utils.ParsePage(c)
	filter := recurring.ListFilter{Page: page.Page, Limit: page.Limit}
	if status := strings.ToUpper(strings.TrimSpace(c.Query("status"))); status != "" {
		st := models.RecurringStatus(status)
		filter.Status = &st
	}

	defs, total, err := svc.List(c.UserContext(), accountID, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"definitions": defs,
		"page":        filter.Page,
		"limit":       filter.Limit,
		"total":       total,
	})
}

func (h *RecurringHandler) Get(c *fiber.Ctx) error {
	svc, accountID, err := h.service(c)
	if err != nil {
		return err
	}
	def, err := svc.Get(c.UserContext(), accountID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(def)
}

func (h *RecurringHandler) Update(c *fiber.Ctx) error {
	var dto RecurringUpdateDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}
	in, err := dto.toInput()
	if err != nil {
		return err
	}

	svc, accountID, err := h.service(c)
	if err != nil {
		return err
	}
	def, err := svc.Update(c.UserContext(), accountID, c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(def)
}

func (h *RecurringHandler) Delete(c *fiber.Ctx) error {
	svc, accountID, err := h.service(c)
	if err != nil {
		return err
	}
	if err := svc.Delete(c.UserContext(), accountID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *RecurringHandler) Pause(c *fiber.Ctx) error {
	return h.transition(c, (*recurring.Service).Pause)
}

func (h *RecurringHandler) Resume(c *fiber.Ctx) error {
	return h.transition(c, (*recurring.Service).Resume)
}

func (h *RecurringHandler) Cancel(c *fiber.Ctx) error {
	return h.transition(c, (*recurring.Service).Cancel)
}

type transitionFunc func(*recurring.Service, context.Context, string, string) (*models.RecurringDefinition, error)

func (h *RecurringHandler) transition(c *fiber.Ctx, fn transitionFunc) error {
	svc, accountID, err := h.service(c)
	if err != nil {
		return err
	}
	def, err := fn(svc, c.UserContext(), accountID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(def)
}

// Generate is the manual "Generate Now" action.
func (h *RecurringHandler) Generate(c *fiber.Ctx) error {
	svc, accountID, err := h.service(c)
	if err != nil {
		return err
	}
	invoice, err := svc.GenerateNow(c.UserContext(), accountID, c.Params("id"), h.now())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(invoice)
}

// Preview query: runs (number of upcoming run dates, default 6).
func (h *RecurringHandler) Preview(c *fiber.Ctx) error {
	svc, accountID, err := h.service(c)
	if err != nil {
		return err
	}
	runs := utils.QueryInt(c, "runs", recurring.DefaultPreviewRuns)
	preview, err := svc.Preview(c.UserContext(), accountID, c.Params("id"), runs, h.now())
	if err != nil {
		return err
	}
	return c.JSON(preview)
}

// RunDue triggers the due batch for all accounts. Query: at (YYYY-MM-DD,
// defaults to today).
func (h *RecurringHandler) RunDue(c *fiber.Ctx) error {
	now := h.now()
	if at := strings.TrimSpace(c.Query("at")); at != "" {
		d, err := schedule.ParseDate(at)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "at must be YYYY-MM-DD")
		}
		now = d
	}

	results, err := h.processor.ProcessDue(c.UserContext(), now)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"run_date": now.Format(time.DateOnly),
		"summary":  recurring.Summarize(results),
		"results":  results,
	})
}

func (dto RecurringCreateDTO) toInput() (recurring.CreateInput, error) {
	start, err := schedule.ParseDate(dto.StartDate)
	if err != nil {
		return recurring.CreateInput{}, recurring.NewValidationError("start_date", dto.StartDate, "must be YYYY-MM-DD")
	}
	end, err := parseOptionalDate("end_date", dto.EndDate)
	if err != nil {
		return recurring.CreateInput{}, err
	}
	return recurring.CreateInput{
		ClientID:      dto.ClientID,
		Frequency:     schedule.Frequency(dto.Frequency),
		StartDate:     start,
		EndDate:       end,
		Currency:      dto.Currency,
		DiscountType:  billing.DiscountType(dto.DiscountType),
		DiscountValue: dto.DiscountValue,
		TaxRate:       dto.TaxRate,
		DueDays:       dto.DueDays,
		AutoSend:      dto.AutoSend,
		Notes:         dto.Notes,
		Items:         dto.Items,
		Groups:        dto.Groups,
	}, nil
}

func (dto RecurringUpdateDTO) toInput() (recurring.UpdateInput, error) {
	in := recurring.UpdateInput{
		ClientID:      dto.ClientID,
		ClearEndDate:  dto.ClearEndDate,
		Currency:      dto.Currency,
		DiscountValue: dto.DiscountValue,
		TaxRate:       dto.TaxRate,
		DueDays:       dto.DueDays,
		AutoSend:      dto.AutoSend,
		Notes:         dto.Notes,
		Items:         dto.Items,
		Groups:        dto.Groups,
	}
	if dto.Frequency != nil {
		f := schedule.Frequency(*dto.Frequency)
		in.Frequency = &f
	}
	if dto.DiscountType != nil {
		t := billing.DiscountType(*dto.DiscountType)
		in.DiscountType = &t
	}

	var err error
	if in.StartDate, err = parseOptionalDate("start_date", dto.StartDate); err != nil {
		return in, err
	}
	if in.NextRunAt, err = parseOptionalDate("next_run_at", dto.NextRunAt); err != nil {
		return in, err
	}
	if in.EndDate, err = parseOptionalDate("end_date", dto.EndDate); err != nil {
		return in, err
	}
	return in, nil
}

func parseOptionalDate(field string, s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	d, err := schedule.ParseDate(strings.TrimSpace(*s))
	if err != nil {
		return nil, recurring.NewValidationError(field, *s, "must be YYYY-MM-DD")
	}
	return &d, nil
}
