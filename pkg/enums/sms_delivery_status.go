package enums

import "fmt"

// SMSDeliveryStatus is the delivery state reported by the SMS gateway.
type SMSDeliveryStatus string

const (
	SMSDeliveryQueued      SMSDeliveryStatus = "queued"
	SMSDeliverySent        SMSDeliveryStatus = "sent"
	SMSDeliveryDelivered   SMSDeliveryStatus = "delivered"
	SMSDeliveryUndelivered SMSDeliveryStatus = "undelivered"
	SMSDeliveryFailed      SMSDeliveryStatus = "failed"
)

var validSMSDeliveryStatuses = []SMSDeliveryStatus{
	SMSDeliveryQueued,
	SMSDeliverySent,
	SMSDeliveryDelivered,
	SMSDeliveryUndelivered,
	SMSDeliveryFailed,
}

// String implements fmt.Stringer.
func (s SMSDeliveryStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SMSDeliveryStatus.
func (s SMSDeliveryStatus) IsValid() bool {
	for _, candidate := range validSMSDeliveryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSMSDeliveryStatus converts raw input into an SMSDeliveryStatus.
func ParseSMSDeliveryStatus(value string) (SMSDeliveryStatus, error) {
	for _, candidate := range validSMSDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sms delivery status %q", value)
}
