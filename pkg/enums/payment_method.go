package enums

import "fmt"

// PaymentMethod identifies how a buyer pays for an order.
type PaymentMethod string

const (
	PaymentMethodMpesa       PaymentMethod = "mpesa"
	PaymentMethodTigoPesa    PaymentMethod = "tigo_pesa"
	PaymentMethodAirtelMoney PaymentMethod = "airtel_money"
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
	PaymentMethodCard        PaymentMethod = "card"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodMpesa,
	PaymentMethodTigoPesa,
	PaymentMethodAirtelMoney,
	PaymentMethodMobileMoney,
	PaymentMethodCard,
}

// String implements fmt.Stringer.
func (s PaymentMethod) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentMethod.
func (s PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// IsMobileMoney reports whether the method settles through a mobile wallet and needs a phone number.
func (s PaymentMethod) IsMobileMoney() bool {
	switch s {
	case PaymentMethodMpesa, PaymentMethodTigoPesa, PaymentMethodAirtelMoney, PaymentMethodMobileMoney:
		return true
	default:
		return false
	}
}
