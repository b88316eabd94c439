package orders

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/api/middleware"
	internalorders "github.com/angelmondragon/escrowpay-backend/internal/orders"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

type stubOrderService struct {
	order       *models.Order
	created     internalorders.CreateInput
	completedBy uuid.UUID
}

func (s *stubOrderService) Create(_ context.Context, input internalorders.CreateInput) (*models.Order, error) {
	s.created = input
	return &models.Order{ID: uuid.New(), BuyerID: input.BuyerID, VendorID: input.VendorID, TotalAmount: input.TotalAmount, Status: enums.OrderStatusPendingPayment}, nil
}

func (s *stubOrderService) Get(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s *stubOrderService) Confirm(context.Context, uuid.UUID) (*models.Order, error) {
	return nil, nil
}

func (s *stubOrderService) ConfirmInTx(context.Context, *gorm.DB, uuid.UUID) (*models.Order, error) {
	return nil, nil
}

func (s *stubOrderService) Complete(_ context.Context, orderID, actorID uuid.UUID) (*internalorders.CompletionResult, error) {
	s.completedBy = actorID
	return &internalorders.CompletionResult{Order: &models.Order{ID: orderID, Status: enums.OrderStatusCompleted}}, nil
}

func withActor(req *http.Request, userID uuid.UUID, role enums.ActorRole, vendorID *uuid.UUID) *http.Request {
	ctx := middleware.WithRole(middleware.WithUserID(req.Context(), userID.String()), role)
	if vendorID != nil {
		ctx = middleware.WithVendorID(ctx, vendorID.String())
	}
	return req.WithContext(ctx)
}

func withOrderParam(req *http.Request, orderID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateUsesCallerAsBuyer(t *testing.T) {
	svc := &stubOrderService{}
	buyerID := uuid.New()
	vendorID := uuid.New()

	body := `{"vendor_id":"` + vendorID.String() + `","total_amount":"100000.00","currency":"TZS"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), buyerID, enums.ActorRoleBuyer, nil)
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, buyerID, svc.created.BuyerID)
	assert.Equal(t, vendorID, svc.created.VendorID)
	assert.True(t, decimal.NewFromInt(100000).Equal(svc.created.TotalAmount))
}

func TestCreateRejectsUnknownFields(t *testing.T) {
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"vendor_id":"`+uuid.NewString()+`","buyer_id":"x"}`)), uuid.New(), enums.ActorRoleBuyer, nil)
	rec := httptest.NewRecorder()
	Create(&stubOrderService{}, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetailHidesOrdersFromStrangers(t *testing.T) {
	vendorID := uuid.New()
	order := &models.Order{ID: uuid.New(), BuyerID: uuid.New(), VendorID: vendorID}
	svc := &stubOrderService{order: order}

	cases := []struct {
		name   string
		req    func(*http.Request) *http.Request
		status int
	}{
		{"buyer", func(r *http.Request) *http.Request { return withActor(r, order.BuyerID, enums.ActorRoleBuyer, nil) }, http.StatusOK},
		{"vendor", func(r *http.Request) *http.Request { return withActor(r, uuid.New(), enums.ActorRoleVendor, &vendorID) }, http.StatusOK},
		{"admin", func(r *http.Request) *http.Request { return withActor(r, uuid.New(), enums.ActorRoleAdmin, nil) }, http.StatusOK},
		{"stranger", func(r *http.Request) *http.Request { return withActor(r, uuid.New(), enums.ActorRoleBuyer, nil) }, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := withOrderParam(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil), order.ID.String())
			rec := httptest.NewRecorder()
			Detail(svc, nil).ServeHTTP(rec, tc.req(req))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestCompletePassesActor(t *testing.T) {
	svc := &stubOrderService{}
	adminID := uuid.New()
	orderID := uuid.New()

	req := withOrderParam(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/complete", nil), orderID.String())
	rec := httptest.NewRecorder()
	Complete(svc, nil).ServeHTTP(rec, withActor(req, adminID, enums.ActorRoleAdmin, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, adminID, svc.completedBy)
}

func TestCompleteRejectsBadOrderID(t *testing.T) {
	req := withOrderParam(httptest.NewRequest(http.MethodPost, "/", nil), "not-a-uuid")
	rec := httptest.NewRecorder()
	Complete(&stubOrderService{}, nil).ServeHTTP(rec, withActor(req, uuid.New(), enums.ActorRoleAdmin, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
