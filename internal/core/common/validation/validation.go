package validation

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/expenseflow/internal"
)

var (
	once     sync.Once
	validate *validator.Validate
	trans    ut.Translator
)

func instance() (*validator.Validate, ut.Translator) {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})

		eng := en.New()
		uni := ut.New(eng, eng)
		trans, _ = uni.GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(validate, trans)
	})
	return validate, trans
}

// Struct validates request structs by their `validate` tags and
// reports every failing field with its json name.
func Struct(s interface{}) *errors.AppError {
	v, t := instance()

	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.NewValidationError(err.Error(), errors.ErrCodeValidationFailed)
	}

	details := make([]errors.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, errors.ValidationError{
			Field:   fe.Field(),
			Message: fe.Translate(t),
			Code:    strings.ToUpper(fe.Tag()),
		})
	}

	return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
		WithDetails(errors.ValidationErrors{Errors: details})
}

func ValidateAmount(field string, amount decimal.Decimal) *errors.AppError {
	if amount.IsNegative() {
		return errors.NewValidationFieldError(field, field+" must not be negative", errors.ErrCodeInvalidAmount)
	}
	return nil
}

// ParseDate accepts YYYY-MM-DD or RFC3339 values.
func ParseDate(field, value string) (time.Time, *errors.AppError) {
	value = strings.TrimSpace(value)
	if d, err := time.Parse("2006-01-02", value); err == nil {
		return d, nil
	}
	if d, err := time.Parse(time.RFC3339, value); err == nil {
		return d, nil
	}
	return time.Time{}, errors.NewValidationFieldError(field, field+" must be a date in YYYY-MM-DD format", errors.ErrCodeInvalidDate)
}

func ValidateExpenseDate(date time.Time) *errors.AppError {
	if date.After(time.Now().Add(24 * time.Hour)) {
		return errors.NewValidationFieldError("expense_date", "expense_date cannot be in the future", errors.ErrCodeInvalidDate)
	}
	return nil
}

func ValidateCurrency(currency string) *errors.AppError {
	v, _ := instance()
	if err := v.Var(currency, "required,iso4217"); err != nil {
		return errors.NewValidationFieldError("currency", "currency must be a three letter ISO code", errors.ErrCodeValidationFailed)
	}
	return nil
}
