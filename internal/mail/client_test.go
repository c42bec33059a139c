package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL: srv.URL,
		Domain:  "duckmail.sbs",
		Timeout: 5 * time.Second,
	}, zerolog.Nop())
}

func TestCreateAccount(t *testing.T) {
	t.Run("provisions mailbox and token", func(t *testing.T) {
		var createdAddress string
		mux := http.NewServeMux()
		mux.HandleFunc("POST /accounts", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			createdAddress = body["address"]
			assert.True(t, strings.HasSuffix(createdAddress, "@duckmail.sbs"))
			assert.NotEmpty(t, body["password"])
			json.NewEncoder(w).Encode(map[string]string{"@id": "/accounts/acc-42"})
		})
		mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"token": "bearer-token"})
		})

		client := newTestClient(t, mux)
		account, err := client.CreateAccount(context.Background())

		require.NoError(t, err)
		assert.Equal(t, createdAddress, account.Address)
		assert.Equal(t, "acc-42", account.ID)
		assert.Equal(t, "bearer-token", account.Token)
	})

	t.Run("surfaces API rejection", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"address taken"}`, http.StatusUnprocessableEntity)
		}))

		_, err := client.CreateAccount(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "422")
	})

	t.Run("rejects empty token", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /accounts", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"id": "acc-1"})
		})
		mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		})

		client := newTestClient(t, mux)
		_, err := client.CreateAccount(context.Background())
		require.Error(t, err)
	})
}

func TestMessages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "acc-1"})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("GET /messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"hydra:member":[
			{"id":"m1","subject":"old","from":{"address":"a@b.c"},"createdAt":"2026-08-30T10:00:00Z"},
			{"id":"m2","subject":"new","from":{"address":"noreply@chayns.de"},"createdAt":"2026-08-31T10:00:00Z"}
		]}`))
	})

	client := newTestClient(t, mux)
	_, err := client.CreateAccount(context.Background())
	require.NoError(t, err)

	messages, err := client.Messages(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m2", messages[0].ID, "newest first")
	assert.Equal(t, "noreply@chayns.de", messages[0].FromAddress)
}

func TestMessage(t *testing.T) {
	htmlBodies := map[string]string{
		"array":  `["<a href='x'>one</a>","<p>two</p>"]`,
		"string": `"<a href='x'>one</a>"`,
	}
	for name, htmlJSON := range htmlBodies {
		t.Run("html as "+name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /accounts", func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"id": "acc-1"})
			})
			mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
			})
			mux.HandleFunc("GET /messages/m1", func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"id":"m1","subject":"s","from":{"address":"a@b.c"},"text":"hi","html":` + htmlJSON + `}`))
			})

			client := newTestClient(t, mux)
			_, err := client.CreateAccount(context.Background())
			require.NoError(t, err)

			detail, err := client.Message(context.Background(), "m1")
			require.NoError(t, err)
			require.NotEmpty(t, detail.HTML)
			assert.Equal(t, "<a href='x'>one</a>", detail.HTML[0])
			assert.Equal(t, "hi", detail.Text)
		})
	}
}

func TestIsVerification(t *testing.T) {
	client := NewClient(Config{}, zerolog.Nop())

	cases := []struct {
		name string
		msg  MessageSummary
		want bool
	}{
		{"whitelisted sender", MessageSummary{FromAddress: "noreply@chayns.de", Subject: "anything"}, true},
		{"whitelisted sender case insensitive", MessageSummary{FromAddress: "NoReply@Chayns.DE"}, true},
		{"welcome subject", MessageSummary{FromAddress: "x@y.z", Subject: "Welcome to chayns!"}, true},
		{"german confirm subject", MessageSummary{FromAddress: "x@y.z", Subject: "Bitte E-Mail bestätigen"}, true},
		{"unrelated mail", MessageSummary{FromAddress: "x@y.z", Subject: "Your weekly digest"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, client.IsVerification(tc.msg))
		})
	}
}
