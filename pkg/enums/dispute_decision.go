package enums

import "fmt"

// DisputeDecision is the settlement outcome chosen when a dispute is resolved.
type DisputeDecision string

const (
	DisputeDecisionRelease DisputeDecision = "release"
	DisputeDecisionRefund  DisputeDecision = "refund"
)

var validDisputeDecisions = []DisputeDecision{
	DisputeDecisionRelease,
	DisputeDecisionRefund,
}

// String implements fmt.Stringer.
func (s DisputeDecision) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DisputeDecision.
func (s DisputeDecision) IsValid() bool {
	for _, candidate := range validDisputeDecisions {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseDisputeDecision converts raw input into a DisputeDecision.
func ParseDisputeDecision(value string) (DisputeDecision, error) {
	for _, candidate := range validDisputeDecisions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute decision %q", value)
}
