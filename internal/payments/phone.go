package payments

import (
	"strings"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

const tanzaniaCode = "255"

// Two-digit network prefixes that follow +255 for each mobile-money operator.
var providerPrefixes = map[string]enums.PaymentMethod{
	"74": enums.PaymentMethodMpesa,
	"75": enums.PaymentMethodMpesa,
	"76": enums.PaymentMethodMpesa,
	"65": enums.PaymentMethodTigoPesa,
	"67": enums.PaymentMethodTigoPesa,
	"71": enums.PaymentMethodTigoPesa,
	"77": enums.PaymentMethodTigoPesa,
	"68": enums.PaymentMethodAirtelMoney,
	"69": enums.PaymentMethodAirtelMoney,
	"78": enums.PaymentMethodAirtelMoney,
}

// NormalizePhone converts local and international spellings of a phone number
// to +<cc><subscriber>. Bare local numbers are assumed Tanzanian.
func NormalizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number required")
	}
	international := strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "00")

	digits := make([]byte, 0, len(trimmed))
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == '+' && i == 0, c == ' ', c == '-', c == '(', c == ')', c == '.':
		default:
			return "", invalidPhone()
		}
	}
	number := string(digits)
	if strings.HasPrefix(trimmed, "00") {
		number = strings.TrimPrefix(number, "00")
	}

	switch {
	case strings.HasPrefix(number, tanzaniaCode) && (international || len(number) == 12):
		if len(number) != 12 {
			return "", invalidPhone()
		}
		return "+" + number, nil
	case international:
		if len(number) < 8 || len(number) > 15 {
			return "", invalidPhone()
		}
		return "+" + number, nil
	case len(number) == 10 && number[0] == '0':
		return "+" + tanzaniaCode + number[1:], nil
	case len(number) == 9 && number[0] != '0':
		return "+" + tanzaniaCode + number, nil
	default:
		return "", invalidPhone()
	}
}

// DetectProvider maps a normalized Tanzanian number to its mobile-money
// operator. Unknown prefixes and foreign numbers use the gateway's generic
// mobile money rail.
func DetectProvider(normalized string) enums.PaymentMethod {
	subscriber, ok := strings.CutPrefix(normalized, "+"+tanzaniaCode)
	if !ok || len(subscriber) != 9 {
		return enums.PaymentMethodMobileMoney
	}
	if method, found := providerPrefixes[subscriber[:2]]; found {
		return method
	}
	return enums.PaymentMethodMobileMoney
}

func invalidPhone() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "phone number format is invalid").
		WithDetails(map[string]any{"field": "phone_number"})
}
