package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chayns-login-service/internal/database"
	"chayns-login-service/internal/models"
	"chayns-login-service/internal/register"
)

type stubAttempter struct {
	mu     sync.Mutex
	calls  int
	creds  []models.Credential
	result models.LoginResult
	block  chan struct{}
}

func (s *stubAttempter) Attempt(_ context.Context, cred models.Credential) models.LoginResult {
	s.mu.Lock()
	s.calls++
	s.creds = append(s.creds, cred)
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return s.result
}

type stubRegistrar struct {
	result *models.RegisterResult
	err    error
}

func (s *stubRegistrar) Run(context.Context, models.RegisterRequest) (*models.RegisterResult, error) {
	return s.result, s.err
}

func newTestServer(attempter *stubAttempter, registrar *stubRegistrar, cfg Config) *Server {
	if attempter == nil {
		attempter = &stubAttempter{}
	}
	if registrar == nil {
		registrar = &stubRegistrar{}
	}
	return New(attempter, registrar, nil, cfg, zerolog.Nop())
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := doJSON(newTestServer(nil, nil, Config{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleLogin(t *testing.T) {
	payload := models.LoginPayload{
		Email:    "user@example.com",
		UserID:   1234,
		PersonID: "ABC-123",
		Token:    "tok",
	}

	t.Run("success returns exactly the token payload", func(t *testing.T) {
		attempter := &stubAttempter{result: models.Success(payload)}
		s := newTestServer(attempter, nil, Config{})

		rec := doJSON(s, http.MethodPost, "/aichat/chayns/login",
			`{"username":"user@example.com","password":"secret"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t,
			`{"email":"user@example.com","userid":1234,"personid":"ABC-123","token":"tok"}`,
			rec.Body.String())
		assert.Equal(t, 1, attempter.calls)
		assert.Equal(t, "secret", attempter.creds[0].Password)
	})

	t.Run("malformed body is rejected without a browser attempt", func(t *testing.T) {
		attempter := &stubAttempter{result: models.Success(payload)}
		s := newTestServer(attempter, nil, Config{})

		rec := doJSON(s, http.MethodPost, "/aichat/chayns/login", `{"username":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, attempter.calls)
	})

	t.Run("empty credentials are rejected without a browser attempt", func(t *testing.T) {
		for name, body := range map[string]string{
			"missing password":    `{"username":"u"}`,
			"missing username":    `{"password":"p"}`,
			"whitespace username": `{"username":"   ","password":"p"}`,
		} {
			t.Run(name, func(t *testing.T) {
				attempter := &stubAttempter{result: models.Success(payload)}
				s := newTestServer(attempter, nil, Config{})

				rec := doJSON(s, http.MethodPost, "/aichat/chayns/login", body)

				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Equal(t, 0, attempter.calls)

				var resp models.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Error)
			})
		}
	})

	t.Run("failure reasons map onto statuses", func(t *testing.T) {
		cases := []struct {
			reason models.FailureReason
			status int
		}{
			{models.ReasonInvalidCredentials, http.StatusUnauthorized},
			{models.ReasonTimeout, http.StatusGatewayTimeout},
			{models.ReasonElementNotFound, http.StatusBadGateway},
			{models.ReasonIncompleteResult, http.StatusBadGateway},
			{models.ReasonAutomation, http.StatusBadGateway},
		}
		for _, tc := range cases {
			t.Run(string(tc.reason), func(t *testing.T) {
				attempter := &stubAttempter{result: models.Failure(tc.reason, "boom")}
				s := newTestServer(attempter, nil, Config{})

				rec := doJSON(s, http.MethodPost, "/aichat/chayns/login",
					`{"username":"u","password":"p"}`)

				assert.Equal(t, tc.status, rec.Code)
				assert.JSONEq(t, `{"error":"boom"}`, rec.Body.String())
			})
		}
	})

	t.Run("session cap rejects surplus requests", func(t *testing.T) {
		block := make(chan struct{})
		attempter := &stubAttempter{result: models.Success(payload), block: block}
		s := newTestServer(attempter, nil, Config{MaxSessions: 1})

		first := make(chan *httptest.ResponseRecorder, 1)
		go func() {
			first <- doJSON(s, http.MethodPost, "/aichat/chayns/login", `{"username":"u","password":"p"}`)
		}()

		// Wait until the first request holds the slot.
		require.Eventually(t, func() bool {
			attempter.mu.Lock()
			defer attempter.mu.Unlock()
			return attempter.calls == 1
		}, 2*time.Second, time.Millisecond)

		rec := doJSON(s, http.MethodPost, "/aichat/chayns/login", `{"username":"u","password":"p"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		close(block)
		assert.Equal(t, http.StatusOK, (<-first).Code)
	})
}

func TestLoginAuditOmitsUsername(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	attempts := database.NewAttemptRepository(db)

	attempter := &stubAttempter{result: models.Failure(models.ReasonInvalidCredentials, "boom")}
	s := New(attempter, &stubRegistrar{}, attempts, Config{}, zerolog.Nop())

	rec := doJSON(s, http.MethodPost, "/aichat/chayns/login",
		`{"username":"user@example.com","password":"secret"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rows, err := attempts.Recent(1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, database.AttemptKindLogin, rows[0].Kind)
	assert.Empty(t, rows[0].Username, "login credentials are transient and must not be persisted")
	assert.Equal(t, "invalid_credentials", rows[0].Reason)
}

func TestHandleRegister(t *testing.T) {
	proAccess := true
	success := &models.RegisterResult{
		Email:        "x1y2@duckmail.sbs",
		Password:     "12345Abc",
		UserID:       99,
		PersonID:     "XYZ-987",
		Token:        "tok",
		HasProAccess: &proAccess,
	}

	t.Run("success returns the account", func(t *testing.T) {
		s := newTestServer(nil, &stubRegistrar{result: success}, Config{})

		rec := doJSON(s, http.MethodPost, "/aichat/chayns/register",
			`{"first_name":"Ada","last_name":"Lovelace"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var got models.RegisterResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, success.Email, got.Email)
		require.NotNil(t, got.HasProAccess)
		assert.True(t, *got.HasProAccess)
	})

	t.Run("missing names are rejected", func(t *testing.T) {
		s := newTestServer(nil, &stubRegistrar{result: success}, Config{})
		rec := doJSON(s, http.MethodPost, "/aichat/chayns/register", `{"first_name":"Ada"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("busy registrar yields 503", func(t *testing.T) {
		s := newTestServer(nil, &stubRegistrar{err: register.ErrBusy}, Config{})
		rec := doJSON(s, http.MethodPost, "/aichat/chayns/register",
			`{"first_name":"Ada","last_name":"Lovelace"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("flow errors carry their own status", func(t *testing.T) {
		s := newTestServer(nil, &stubRegistrar{
			err: &register.FlowError{State: "branch_detected", Status: http.StatusConflict, Msg: "address already registered"},
		}, Config{})
		rec := doJSON(s, http.MethodPost, "/aichat/chayns/register",
			`{"first_name":"Ada","last_name":"Lovelace"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.JSONEq(t, `{"error":"address already registered"}`, rec.Body.String())
	})

	t.Run("unclassified errors yield 500", func(t *testing.T) {
		s := newTestServer(nil, &stubRegistrar{err: errors.New("boom")}, Config{})
		rec := doJSON(s, http.MethodPost, "/aichat/chayns/register",
			`{"first_name":"Ada","last_name":"Lovelace"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
