package recurring

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"fakturierung-recurring/billing"
	"fakturierung-recurring/models"
	"fakturierung-recurring/schedule"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validate = newValidator()

	frequencyList = joinFrequencies(schedule.Frequencies)

	hundred = decimal.NewFromInt(100)
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput runs the struct tag rules and reports the first failure as
// a ValidationError.
func validateInput(in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		return NewValidationError(field, fe.Value(), ruleMessage(fe))
	}
	return err
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "is too long"
	case "min":
		return "is too short"
	}
	return "failed " + fe.Tag()
}

// validateDefinition checks the standing invariants of a definition. It runs
// on the final state after every create and update.
func validateDefinition(def *models.RecurringDefinition) error {
	if !def.Frequency.IsValid() {
		return NewValidationError("frequency", def.Frequency, "must be one of "+frequencyList)
	}
	if def.StartDate.IsZero() {
		return NewValidationError("start_date", nil, "is required")
	}
	if def.NextRunAt.Before(def.StartDate) {
		return NewValidationError("next_run_at", def.NextRunAt.Format("2006-01-02"), "must not be before start_date")
	}
	if def.EndDate != nil && def.EndDate.Before(def.StartDate) {
		return NewValidationError("end_date", def.EndDate.Format("2006-01-02"), "must not be before start_date")
	}
	if def.DueDays <= 0 {
		return NewValidationError("due_days", def.DueDays, "must be greater than 0")
	}
	if err := validateDiscount(def.Discount()); err != nil {
		return err
	}
	if def.TaxRate.IsNegative() || def.TaxRate.GreaterThan(hundred) {
		return NewValidationError("tax_rate", def.TaxRate.String(), "must be between 0 and 100")
	}
	if def.ItemCount() == 0 {
		return NewValidationError("items", 0, "at least one line item is required")
	}
	for i := range def.Items {
		if err := validateItem(fmt.Sprintf("items[%d]", i), &def.Items[i]); err != nil {
			return err
		}
	}
	for g := range def.Groups {
		group := &def.Groups[g]
		if strings.TrimSpace(group.Name) == "" {
			return NewValidationError(fmt.Sprintf("groups[%d].name", g), group.Name, "is required")
		}
		for i := range group.Items {
			if err := validateItem(fmt.Sprintf("groups[%d].items[%d]", g, i), &group.Items[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateDiscount(d billing.Discount) error {
	if !d.Type.IsValid() {
		return NewValidationError("discount_type", d.Type, "must be one of NONE, PERCENTAGE, FIXED")
	}
	if d.Value.IsNegative() {
		return NewValidationError("discount_value", d.Value.String(), "must not be negative")
	}
	if d.Type == billing.DiscountPercentage && d.Value.GreaterThan(hundred) {
		return NewValidationError("discount_value", d.Value.String(), "percentage must not exceed 100")
	}
	return nil
}

func validateItem(path string, item *models.RecurringItem) error {
	if strings.TrimSpace(item.Title) == "" {
		return NewValidationError(path+".title", item.Title, "is required")
	}
	if !item.Quantity.IsPositive() {
		return NewValidationError(path+".quantity", item.Quantity.String(), "must be greater than 0")
	}
	if item.UnitPrice < 0 {
		return NewValidationError(path+".unit_price", item.UnitPrice, "must not be negative")
	}
	return nil
}

func normalizeDiscountType(t billing.DiscountType) billing.DiscountType {
	if t == "" {
		return billing.DiscountNone
	}
	return billing.DiscountType(strings.ToUpper(string(t)))
}

func joinFrequencies(fs []schedule.Frequency) string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func normalizeFrequency(f schedule.Frequency) schedule.Frequency {
	return schedule.Frequency(strings.ToUpper(strings.TrimSpace(string(f))))
}
