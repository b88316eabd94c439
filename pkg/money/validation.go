package money

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

// Scale is the number of fractional digits every persisted amount carries.
const Scale = 2

// AmountViolationDetail is attached to validation errors so callers can correct the input.
type AmountViolationDetail struct {
	Field   string `json:"field"`
	Amount  string `json:"amount"`
	Maximum string `json:"maximum,omitempty"`
	Minimum string `json:"minimum,omitempty"`
}

// ValidateAmount requires a positive amount with at most two decimal places.
// A zero ceiling disables the upper bound.
func ValidateAmount(field string, amount, ceiling decimal.Decimal) error {
	detail := AmountViolationDetail{Field: field, Amount: amount.String()}
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" must be greater than zero").WithDetails(detail)
	}
	if !amount.Equal(amount.Round(Scale)) {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" must have at most 2 decimal places").WithDetails(detail)
	}
	if ceiling.IsPositive() && amount.GreaterThan(ceiling) {
		detail.Maximum = ceiling.StringFixed(Scale)
		return pkgerrors.New(pkgerrors.CodeValidation, field+" exceeds the allowed maximum").WithDetails(detail)
	}
	return nil
}

// ResolveCurrency parses raw against the allow-list, returning fallback for blank input.
func ResolveCurrency(raw string, fallback enums.Currency) (enums.Currency, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		if fallback == "" {
			fallback = enums.CurrencyTZS
		}
		return fallback, nil
	}
	currency, err := enums.ParseCurrency(trimmed)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency").WithDetails(map[string]any{
			"currency": raw,
			"allowed":  []enums.Currency{enums.CurrencyTZS, enums.CurrencyUSD, enums.CurrencyEUR, enums.CurrencyGBP},
		})
	}
	return currency, nil
}

// Mismatch builds the AMOUNT_MISMATCH error used when a settling amount differs from the held amount.
func Mismatch(expected, received decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeAmountMismatch, "amount does not match escrow amount").WithDetails(map[string]any{
		"expected": expected.StringFixed(Scale),
		"received": received.StringFixed(Scale),
	})
}
