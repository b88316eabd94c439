package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/escrowpay-backend/api/middleware"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

func asBuyer(req *http.Request, userID uuid.UUID) *http.Request {
	return withActor(req, userID, enums.ActorRoleBuyer, nil)
}

func asVendor(req *http.Request, userID, vendorID uuid.UUID) *http.Request {
	return withActor(req, userID, enums.ActorRoleVendor, &vendorID)
}

func asAdmin(req *http.Request, userID uuid.UUID) *http.Request {
	return withActor(req, userID, enums.ActorRoleAdmin, nil)
}

func withActor(req *http.Request, userID uuid.UUID, role enums.ActorRole, vendorID *uuid.UUID) *http.Request {
	ctx := middleware.WithRole(middleware.WithUserID(req.Context(), userID.String()), role)
	if vendorID != nil {
		ctx = middleware.WithVendorID(ctx, vendorID.String())
	}
	return req.WithContext(ctx)
}

func withParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// decodeData unwraps the success envelope into out.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Error.Code
}
