package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

func testConfig(baseURL string) config.SMSConfig {
	return config.SMSConfig{
		BaseURL:    baseURL,
		AccountSID: "AC123",
		AuthToken:  "secret",
		FromNumber: "+255700000000",
	}
}

func TestSendPostsFormWithStatusCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+255712345678", r.PostForm.Get("To"))
		assert.Equal(t, "+255700000000", r.PostForm.Get("From"))
		assert.Equal(t, "Payment received", r.PostForm.Get("Body"))
		assert.Equal(t, "https://api.example.com/api/v1/webhooks/sms", r.PostForm.Get("StatusCallback"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), "https://api.example.com/api/v1/webhooks/sms", nil)
	require.NoError(t, err)

	sid, err := client.Send(context.Background(), "+255712345678", "Payment received")
	require.NoError(t, err)
	assert.Equal(t, "SM1", sid)
}

func TestSendMapsProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"invalid To number"}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), "", nil)
	require.NoError(t, err)

	_, err = client.Send(context.Background(), "+255712345678", "hello")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 21211, details["provider_code"])
}

func TestNewClientRequiresConfiguration(t *testing.T) {
	_, err := NewClient(config.SMSConfig{}, "", nil)
	assert.ErrorIs(t, err, errNotConfigured)

	cfg := testConfig("not a url")
	_, err = NewClient(cfg, "", nil)
	assert.Error(t, err)
}

func TestSendValidatesInput(t *testing.T) {
	client, err := NewClient(testConfig("http://127.0.0.1:1"), "", nil)
	require.NoError(t, err)

	_, err = client.Send(context.Background(), "", "hello")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = client.Send(context.Background(), "+255712345678", "  ")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
