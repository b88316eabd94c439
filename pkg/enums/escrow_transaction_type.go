package enums

import "fmt"

// EscrowTransactionType classifies an immutable escrow journal entry.
type EscrowTransactionType string

const (
	EscrowTxnDeposit     EscrowTransactionType = "deposit"
	EscrowTxnRelease     EscrowTransactionType = "release"
	EscrowTxnRefund      EscrowTransactionType = "refund"
	EscrowTxnDisputeHold EscrowTransactionType = "dispute_hold"
)

var validEscrowTransactionTypes = []EscrowTransactionType{
	EscrowTxnDeposit,
	EscrowTxnRelease,
	EscrowTxnRefund,
	EscrowTxnDisputeHold,
}

// String implements fmt.Stringer.
func (s EscrowTransactionType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EscrowTransactionType.
func (s EscrowTransactionType) IsValid() bool {
	for _, candidate := range validEscrowTransactionTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEscrowTransactionType converts raw input into an EscrowTransactionType.
func ParseEscrowTransactionType(value string) (EscrowTransactionType, error) {
	for _, candidate := range validEscrowTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid escrow transaction type %q", value)
}
