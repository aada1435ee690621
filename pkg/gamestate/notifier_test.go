package gamestate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovementCompleted(t *testing.T) {
	var got event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, time.Second)
	n.MovementCompleted(context.Background(), "user-1", "RAIL_TRANSFER", 1.5, "sig1")

	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "RAIL_TRANSFER", got.Event)
	assert.Equal(t, 1.5, got.AmountSol)
	assert.Equal(t, "sig1", got.Signature)
}

func TestDisabledNotifier(t *testing.T) {
	n := NewNotifier("", time.Second)
	assert.False(t, n.Enabled())
	// Must be a silent no-op, not a panic or an outbound call.
	n.MovementCompleted(context.Background(), "user-1", "DEPOSIT", 1, "")
}

func TestNotifyFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, time.Second)
	// Only logged; the caller never sees delivery trouble.
	n.MovementCompleted(context.Background(), "user-1", "DEPOSIT", 1, "sig")
}
