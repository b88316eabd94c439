package enums

import "fmt"

// PayoutAction is an admin action applied to a payout.
type PayoutAction string

const (
	PayoutActionMarkProcessing PayoutAction = "mark_processing"
	PayoutActionComplete       PayoutAction = "complete"
	PayoutActionFail           PayoutAction = "fail"
)

var validPayoutActions = []PayoutAction{
	PayoutActionMarkProcessing,
	PayoutActionComplete,
	PayoutActionFail,
}

// String implements fmt.Stringer.
func (s PayoutAction) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PayoutAction.
func (s PayoutAction) IsValid() bool {
	for _, candidate := range validPayoutActions {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePayoutAction converts raw input into a PayoutAction.
func ParsePayoutAction(value string) (PayoutAction, error) {
	for _, candidate := range validPayoutActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout action %q", value)
}
