package validators

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

// maxAmountPlaces is the number of minor-unit digits an amount may carry.
const maxAmountPlaces = 2

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	// Amounts validate as their string form; the zero amount reads as empty
	// so omitempty treats it as "not sent".
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		amount, ok := field.Interface().(decimal.Decimal)
		if !ok || amount.IsZero() {
			return ""
		}
		return amount.String()
	}, decimal.Decimal{})
	mustRegister(v, "amount", validAmount)
	mustRegister(v, "currency", validCurrency)
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// validAmount accepts a positive decimal with at most two fractional digits.
func validAmount(fl validator.FieldLevel) bool {
	amount, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return amount.IsPositive() && -amount.Exponent() <= maxAmountPlaces
}

// validCurrency accepts an upper-case ISO 4217 style code.
func validCurrency(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if len(code) != 3 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func formatValidationErrors(err error) *pkgerrors.Error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[fieldErr.Field()] = validationMessage(fieldErr)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "uuid":
		return "must be a valid uuid"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "amount":
		return fmt.Sprintf("must be a positive amount with at most %d decimal places", maxAmountPlaces)
	case "currency":
		return "must be a three-letter upper-case currency code"
	}
	return "is invalid"
}
