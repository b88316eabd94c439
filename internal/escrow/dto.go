package escrow

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// CreateAccountInput opens the escrow account for an order.
type CreateAccountInput struct {
	OrderID  uuid.UUID
	BuyerID  uuid.UUID
	VendorID uuid.UUID
	Amount   decimal.Decimal
	Currency string
}

// FundInput settles a pending account with a completed payment.
type FundInput struct {
	AccountID        uuid.UUID
	PaymentReference string
	PaymentAmount    decimal.Decimal
}

// SettleInput moves the held funds out of escrow. A zero Amount means the full
// escrow amount.
type SettleInput struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	ActorID   uuid.UUID
	Reference *string
	Notes     *string
}

// OpenDisputeInput freezes a funded account.
type OpenDisputeInput struct {
	AccountID uuid.UUID
	OpenedBy  uuid.UUID
	Reason    string
}

// ResolveDisputeInput settles a disputed account in favour of one party.
type ResolveDisputeInput struct {
	AccountID  uuid.UUID
	ResolvedBy uuid.UUID
	Decision   enums.DisputeDecision
	Amount     decimal.Decimal
	Notes      *string
}

// DisputeResult pairs the account with the dispute record touched alongside it.
type DisputeResult struct {
	Account *models.EscrowAccount `json:"account"`
	Dispute *models.Dispute       `json:"dispute"`
}
