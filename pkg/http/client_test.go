package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "arb_monitor/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"price":"50000"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 0)
	var out struct {
		Price string `json:"price"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/ticker", map[string]string{"symbol": "BTCUSDT"}, &out))
	assert.Equal(t, "50000", out.Price)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 0)
	_, err := c.Get(context.Background(), "/missing", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClient_NetworkErrorClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, time.Second, 0)
	_, err := c.Get(context.Background(), "/", nil)
	require.ErrorIs(t, err, apperrors.ErrNetwork)
	assert.True(t, apperrors.IsTransient(err))
}

func TestClient_RateLimiterCancellation(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", time.Second, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Get(ctx, "/", nil)
	require.ErrorIs(t, err, apperrors.ErrRateLimitExceeded)
}
