package enums

import "fmt"

// WalletTransactionType classifies a vendor wallet movement.
type WalletTransactionType string

const (
	WalletTxnCredit         WalletTransactionType = "credit"
	WalletTxnPayoutHold     WalletTransactionType = "payout_hold"
	WalletTxnPayoutComplete WalletTransactionType = "payout_complete"
	WalletTxnPayoutRelease  WalletTransactionType = "payout_release"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTxnCredit,
	WalletTxnPayoutHold,
	WalletTxnPayoutComplete,
	WalletTxnPayoutRelease,
}

// String implements fmt.Stringer.
func (s WalletTransactionType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known WalletTransactionType.
func (s WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}
