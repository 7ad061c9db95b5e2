package escrowhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/access-broker/access-broker/internal/domain/identity"
)

func TestPaymentReceived(t *testing.T) {
	id := identity.RequestID("0xabc123")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/escrows/"+string(id), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", 5*time.Second)
	received, err := c.PaymentReceived(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, received)
}

func TestPaymentReceivedUnknownEscrow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "", 5*time.Second)
	received, err := c.PaymentReceived(context.Background(), "0xabc123")
	require.NoError(t, err)
	assert.False(t, received)
}

func TestReleaseAndRefund(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "", 5*time.Second)
	require.NoError(t, c.ReleasePayment(context.Background(), "0xabc123"))
	require.NoError(t, c.RefundPayment(context.Background(), "0xabc123"))
	assert.Equal(t, []string{"/escrows/0xabc123/release", "/escrows/0xabc123/refund"}, paths)
}

func TestSettlementFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := New(srv.URL, "", 5*time.Second)
	err := c.ReleasePayment(context.Background(), "0xabc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}
