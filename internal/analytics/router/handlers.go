package router

import (
	"context"
	"fmt"

	"github.com/angelmondragon/escrowpay-backend/internal/analytics/types"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox/payloads"
)

// settlementHandler decodes one payload family into a settlement row.
type settlementHandler struct {
	writer Writer
	logg   *logger.Logger
	build  func(envelope types.Envelope, payload any) (types.SettlementEventRow, error)
}

func (h *settlementHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	})

	row, err := h.build(envelope, payload)
	if err != nil {
		h.logg.Error(logCtx, "failed to build settlement row", err)
		return err
	}

	if err := h.writer.InsertSettlement(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert settlement row", err)
		return err
	}

	h.logg.Info(logCtx, "settlement row inserted")
	return nil
}

func newPaymentHandler(writer Writer, logg *logger.Logger) Handler {
	return &settlementHandler{writer: writer, logg: logg, build: func(envelope types.Envelope, payload any) (types.SettlementEventRow, error) {
		event, ok := payload.(*payloads.PaymentStatusEvent)
		if !ok {
			return types.SettlementEventRow{}, fmt.Errorf("invalid payload for %s", envelope.EventType)
		}
		reference := ""
		if event.ExternalReference != nil {
			reference = *event.ExternalReference
		}
		return buildSettlementRow(envelope, settlementFields{
			OrderID:   uuidPtr(event.OrderID),
			BuyerID:   uuidPtr(event.BuyerID),
			Status:    string(event.Status),
			Amount:    event.Amount,
			Currency:  event.Currency,
			Method:    stringPtr(string(event.Method)),
			Reference: stringPtr(reference),
			Simulated: event.Simulated,
			Occurred:  event.OccurredAt,
		}, event)
	}}
}

func newEscrowHandler(writer Writer, logg *logger.Logger) Handler {
	return &settlementHandler{writer: writer, logg: logg, build: func(envelope types.Envelope, payload any) (types.SettlementEventRow, error) {
		event, ok := payload.(*payloads.EscrowEvent)
		if !ok {
			return types.SettlementEventRow{}, fmt.Errorf("invalid payload for %s", envelope.EventType)
		}
		reference := ""
		if event.Reference != nil {
			reference = *event.Reference
		}
		return buildSettlementRow(envelope, settlementFields{
			OrderID:   uuidPtr(event.OrderID),
			BuyerID:   uuidPtr(event.BuyerID),
			VendorID:  uuidPtr(event.VendorID),
			Status:    string(event.Status),
			Amount:    event.Amount,
			Currency:  event.Currency,
			Reference: stringPtr(reference),
			Occurred:  event.OccurredAt,
		}, event)
	}}
}

func newDisputeHandler(writer Writer, logg *logger.Logger) Handler {
	return &settlementHandler{writer: writer, logg: logg, build: func(envelope types.Envelope, payload any) (types.SettlementEventRow, error) {
		event, ok := payload.(*payloads.DisputeResolvedEvent)
		if !ok {
			return types.SettlementEventRow{}, fmt.Errorf("invalid payload for %s", envelope.EventType)
		}
		return buildSettlementRow(envelope, settlementFields{
			OrderID:   uuidPtr(event.OrderID),
			BuyerID:   uuidPtr(event.BuyerID),
			VendorID:  uuidPtr(event.VendorID),
			Status:    string(event.Decision),
			Amount:    event.Amount,
			Currency:  event.Currency,
			Reference: uuidPtr(event.DisputeID),
			Occurred:  event.OccurredAt,
		}, event)
	}}
}

func newOrderHandler(writer Writer, logg *logger.Logger) Handler {
	return &settlementHandler{writer: writer, logg: logg, build: func(envelope types.Envelope, payload any) (types.SettlementEventRow, error) {
		event, ok := payload.(*payloads.OrderStatusEvent)
		if !ok {
			return types.SettlementEventRow{}, fmt.Errorf("invalid payload for %s", envelope.EventType)
		}
		return buildSettlementRow(envelope, settlementFields{
			OrderID:  uuidPtr(event.OrderID),
			BuyerID:  uuidPtr(event.BuyerID),
			VendorID: uuidPtr(event.VendorID),
			Status:   string(event.Status),
			Amount:   event.TotalAmount,
			Currency: event.Currency,
			Occurred: event.OccurredAt,
		}, event)
	}}
}

func newWalletHandler(writer Writer, logg *logger.Logger) Handler {
	return &settlementHandler{writer: writer, logg: logg, build: func(envelope types.Envelope, payload any) (types.SettlementEventRow, error) {
		event, ok := payload.(*payloads.WalletCreditedEvent)
		if !ok {
			return types.SettlementEventRow{}, fmt.Errorf("invalid payload for %s", envelope.EventType)
		}
		fields := settlementFields{
			VendorID: uuidPtr(event.VendorID),
			Status:   "credited",
			Amount:   event.Amount,
			Currency: event.Currency,
			Occurred: event.OccurredAt,
		}
		if event.OrderID != nil {
			fields.OrderID = uuidPtr(*event.OrderID)
		}
		return buildSettlementRow(envelope, fields, event)
	}}
}

func newPayoutHandler(writer Writer, logg *logger.Logger) Handler {
	return &settlementHandler{writer: writer, logg: logg, build: func(envelope types.Envelope, payload any) (types.SettlementEventRow, error) {
		event, ok := payload.(*payloads.PayoutEvent)
		if !ok {
			return types.SettlementEventRow{}, fmt.Errorf("invalid payload for %s", envelope.EventType)
		}
		return buildSettlementRow(envelope, settlementFields{
			VendorID:  uuidPtr(event.VendorID),
			Status:    string(event.Status),
			Amount:    event.Amount,
			Currency:  event.Currency,
			Reference: stringPtr(event.PayoutReference),
			Occurred:  event.OccurredAt,
		}, event)
	}}
}
