package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypePayment NotificationType = "payment"
	NotificationTypeEscrow  NotificationType = "escrow"
	NotificationTypePayout  NotificationType = "payout"
	NotificationTypeDispute NotificationType = "dispute"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePayment,
	NotificationTypeEscrow,
	NotificationTypePayout,
	NotificationTypeDispute,
}

// String implements fmt.Stringer.
func (s NotificationType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known NotificationType.
func (s NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
