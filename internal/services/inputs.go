package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"fintrack/internal/core"
)

type SignupInput struct {
	Username  string `json:"username" validate:"required,notblank,max=64"`
	Password  string `json:"password" validate:"required,min=4,max=72"`
	Biometric bool   `json:"biometric"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required,notblank"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordInput struct {
	Current string `json:"current" validate:"required"`
	New     string `json:"new" validate:"required,min=4,max=72"`
}

type SalaryInput struct {
	Period string     `json:"period" validate:"required,yearmonth"`
	Amount core.Money `json:"amount" validate:"gt=0,maxamount"`
}

// TransactionInput is a manual entry. An empty category is filled in by the
// classifier.
type TransactionInput struct {
	Date        string        `json:"date" validate:"required,isodate"`
	Description string        `json:"description" validate:"required,notblank,max=200"`
	Category    core.Category `json:"category" validate:"omitempty,category"`
	Amount      core.Money    `json:"amount" validate:"gt=0,maxamount"`
	Account     string        `json:"account" validate:"max=64"`
}

type EMIInput struct {
	Lender     string     `json:"lender" validate:"required,notblank,max=100"`
	Purpose    string     `json:"purpose" validate:"max=200"`
	MonthlyEMI core.Money `json:"monthlyEMI" validate:"gt=0,maxamount"`
	DueDay     int        `json:"dueDay" validate:"min=1,max=31"`
	StartDate  string     `json:"startDate" validate:"required,isodate"`
	EndDate    string     `json:"endDate" validate:"omitempty,isodate"`
}

type ImportInput struct {
	Source core.ImportSource `json:"source" validate:"required,oneof=bank card"`
	Note   string            `json:"note" validate:"max=200"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// Money is validated on its cents.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if m, ok := field.Interface().(core.Money); ok {
			return m.Cents
		}
		return nil
	}, core.Money{})

	_ = v.RegisterValidation("yearmonth", func(fl validator.FieldLevel) bool {
		return core.Period(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, ok := core.ParseDate(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("maxamount", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() <= core.MaxAmountCents
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return core.Category(fl.Field().String()).IsSelectable()
	})
	return v
}

// validateInput runs the struct tags and converts the first failure into a
// *core.ValidationError.
func (l *Ledger) validateInput(in any) error {
	err := l.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate input: %w", err)
	}
	fe := verrs[0]
	return core.NewValidationError(fe.Field(), fieldError(fe))
}

func fieldError(fe validator.FieldError) error {
	if fe.Field() == "dueDay" {
		return core.ErrInvalidDueDay
	}
	switch fe.Tag() {
	case "required", "notblank":
		if fe.Field() == "description" {
			return core.ErrEmptyDescription
		}
		return errors.New("is required")
	case "gt", "maxamount":
		return core.ErrInvalidAmount
	case "yearmonth":
		return core.ErrInvalidPeriod
	case "isodate":
		return core.ErrInvalidDate
	case "category":
		return core.ErrInvalidCategory
	case "max":
		if fe.Field() == "description" {
			return core.ErrDescriptionTooLong
		}
		return fmt.Errorf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Errorf("must be at least %s characters", fe.Param())
	case "oneof":
		return fmt.Errorf("must be one of %s", fe.Param())
	default:
		return fmt.Errorf("failed %s", fe.Tag())
	}
}
