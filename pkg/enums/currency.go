package enums

import "fmt"

// Currency represents the currencies money can be held in.
type Currency string

const (
	CurrencyTZS Currency = "TZS"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

var validCurrencies = []Currency{
	CurrencyTZS,
	CurrencyUSD,
	CurrencyEUR,
	CurrencyGBP,
}

// String implements fmt.Stringer.
func (s Currency) String() string {
	return string(s)
}

// IsValid reports whether the value is a known Currency.
func (s Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCurrency converts raw input into a Currency.
func ParseCurrency(value string) (Currency, error) {
	for _, candidate := range validCurrencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
