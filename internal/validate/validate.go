package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MrJamesThe3rd/autoescrow/internal/money"
)

var ErrInvalidRequest = errors.New("invalid request")

var v = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterValidation("iban", validateIBAN)
	v.RegisterValidation("currency", validateCurrency)
	v.RegisterValidation("amount", validateAmount)

	return v
}

// validateIBAN checks country, length and the mod-97 checksum.
func validateIBAN(fl validator.FieldLevel) bool {
	return money.ValidIBAN(fl.Field().String())
}

// validateCurrency accepts ISO 4217 codes in any case.
func validateCurrency(fl validator.FieldLevel) bool {
	_, err := money.ParseCurrency(fl.Field().String())
	return err == nil
}

// validateAmount accepts non-negative decimal strings in whole cents.
func validateAmount(fl validator.FieldLevel) bool {
	_, err := money.ParseAmount(fl.Field().String())
	return err == nil
}

// Struct validates s against its `validate` tags. Failures are reported as
// one ErrInvalidRequest listing every offending field.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}

	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, ", "))
}
