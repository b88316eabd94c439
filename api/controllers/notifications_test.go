package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/escrowpay-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

type stubNotificationsService struct {
	notifications.Service

	listParams notifications.ListParams
	markedBy   uuid.UUID
	markedID   uuid.UUID
	markErr    error
	allCount   int64
}

func (s *stubNotificationsService) List(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	s.listParams = params
	return &notifications.ListResult{Cursor: "next"}, nil
}

func (s *stubNotificationsService) MarkRead(_ context.Context, recipientID, notificationID uuid.UUID) error {
	s.markedBy = recipientID
	s.markedID = notificationID
	return s.markErr
}

func (s *stubNotificationsService) MarkAllRead(_ context.Context, recipientID uuid.UUID) (int64, error) {
	s.markedBy = recipientID
	return s.allCount, nil
}

func TestListNotificationsScopesToCaller(t *testing.T) {
	svc := &stubNotificationsService{}
	userID := uuid.New()

	req := asBuyer(httptest.NewRequest(http.MethodGet, "/?limit=10&unreadOnly=true&cursor=abc", nil), userID)
	rec := httptest.NewRecorder()
	ListNotifications(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, notifications.ListParams{RecipientID: userID, Limit: 10, Cursor: "abc", UnreadOnly: true}, svc.listParams)
}

func TestListNotificationsRejectsBadUnreadFlag(t *testing.T) {
	req := asBuyer(httptest.NewRequest(http.MethodGet, "/?unreadOnly=maybe", nil), uuid.New())
	rec := httptest.NewRecorder()
	ListNotifications(&stubNotificationsService{}, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkNotificationRead(t *testing.T) {
	svc := &stubNotificationsService{}
	userID := uuid.New()
	notificationID := uuid.New()

	req := withParams(asVendor(httptest.NewRequest(http.MethodPost, "/", nil), userID, uuid.New()), map[string]string{"notificationId": notificationID.String()})
	rec := httptest.NewRecorder()
	MarkNotificationRead(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, svc.markedBy)
	assert.Equal(t, notificationID, svc.markedID)
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	svc := &stubNotificationsService{markErr: pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")}
	req := withParams(asBuyer(httptest.NewRequest(http.MethodPost, "/", nil), uuid.New()), map[string]string{"notificationId": uuid.NewString()})
	rec := httptest.NewRecorder()
	MarkNotificationRead(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	svc := &stubNotificationsService{allCount: 3}
	userID := uuid.New()
	rec := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, nil).ServeHTTP(rec, asBuyer(httptest.NewRequest(http.MethodPost, "/", nil), userID))

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]int64
	decodeData(t, rec, &got)
	assert.Equal(t, int64(3), got["updated"])
	assert.Equal(t, userID, svc.markedBy)
}
