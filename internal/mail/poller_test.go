package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pollServer simulates a mailbox that stays empty for a number of
// listing calls before the verification mail arrives.
func pollServer(t *testing.T, emptyRounds int32) *Client {
	t.Helper()
	var listings int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "acc-1"})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("GET /messages", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&listings, 1) <= emptyRounds {
			w.Write([]byte(`{"hydra:member":[]}`))
			return
		}
		w.Write([]byte(`{"hydra:member":[
			{"id":"spam","subject":"Your weekly digest","from":{"address":"x@y.z"},"createdAt":"2026-08-31T09:00:00Z"},
			{"id":"m1","subject":"Welcome to chayns","from":{"address":"noreply@chayns.de"},"createdAt":"2026-08-31T10:00:00Z"}
		]}`))
	})
	mux.HandleFunc("GET /messages/m1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"m1","subject":"Welcome to chayns","from":{"address":"noreply@chayns.de"},
			"html":["<a href=\"https://chayns.cc/login1/abc\">Confirm</a>"]}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client := NewClient(Config{BaseURL: srv.URL, Domain: "duckmail.sbs", Timeout: 5 * time.Second}, zerolog.Nop())
	_, err := client.CreateAccount(context.Background())
	require.NoError(t, err)
	return client
}

func TestWaitForConfirmationLink(t *testing.T) {
	t.Run("finds link after empty rounds", func(t *testing.T) {
		client := pollServer(t, 2)
		poller := &Poller{Client: client, Interval: time.Millisecond, MaxAttempts: 10}

		link, err := poller.WaitForConfirmationLink(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "https://chayns.cc/login1/abc", link)
	})

	t.Run("exhausted budget returns ErrNoVerificationMail", func(t *testing.T) {
		client := pollServer(t, 100)
		poller := &Poller{Client: client, Interval: time.Millisecond, MaxAttempts: 3}

		_, err := poller.WaitForConfirmationLink(context.Background())
		assert.ErrorIs(t, err, ErrNoVerificationMail)
	})

	t.Run("cancelled context aborts the poll", func(t *testing.T) {
		client := pollServer(t, 100)
		poller := &Poller{Client: client, Interval: time.Hour, MaxAttempts: 10}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := poller.WaitForConfirmationLink(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
