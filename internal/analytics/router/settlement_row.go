package router

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/escrowpay-backend/internal/analytics/writer"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

type settlementFields struct {
	OrderID   *string
	BuyerID   *string
	VendorID  *string
	Status    string
	Amount    decimal.Decimal
	Currency  enums.Currency
	Method    *string
	Reference *string
	Simulated bool
	Occurred  time.Time
}

func buildSettlementRow(envelope types.Envelope, fields settlementFields, payload any) (types.SettlementEventRow, error) {
	occurred := fields.Occurred
	if occurred.IsZero() {
		occurred = envelope.OccurredAt
	}

	payloadJSON, err := analyticswriter.EncodeJSON(payload)
	if err != nil {
		return types.SettlementEventRow{}, fmt.Errorf("encode payload json: %w", err)
	}

	row := envelope.Row()
	row.OccurredAt = occurred.UTC()
	row.OrderID = fields.OrderID
	row.BuyerID = fields.BuyerID
	row.VendorID = fields.VendorID
	row.Status = fields.Status
	row.AmountMinor = minorUnits(fields.Amount)
	row.Currency = string(fields.Currency)
	row.Method = fields.Method
	row.Reference = fields.Reference
	row.Simulated = fields.Simulated
	row.Payload = payloadJSON
	return row, nil
}

// minorUnits converts a two-decimal amount to its integer minor units.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
