package register

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRegister(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := NewSettingsClient(SettingsConfig{PostRegisterURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	c.PostRegister(context.Background(), "tok-1")

	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "sidekick pro", gotBody["message"])
	assert.Equal(t, "None", gotBody["nerMode"])
}

func TestHasProAccess(t *testing.T) {
	t.Run("decodes the pro flag", func(t *testing.T) {
		var gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			w.Write([]byte(`{"hasProAccess":true}`))
		}))
		t.Cleanup(srv.Close)

		c := NewSettingsClient(SettingsConfig{UserSettingsURL: srv.URL + "/userSettings/personId/%s", Timeout: time.Second}, zerolog.Nop())
		got := c.HasProAccess(context.Background(), "tok-1", "P-1")

		require.NotNil(t, got)
		assert.True(t, *got)
		assert.Equal(t, "/userSettings/personId/P-1", gotPath)
	})

	t.Run("lookup failure yields nil", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusForbidden)
		}))
		t.Cleanup(srv.Close)

		c := NewSettingsClient(SettingsConfig{UserSettingsURL: srv.URL + "/%s", Timeout: time.Second}, zerolog.Nop())
		assert.Nil(t, c.HasProAccess(context.Background(), "tok-1", "P-1"))
	})

	t.Run("unconfigured endpoint yields nil", func(t *testing.T) {
		c := NewSettingsClient(SettingsConfig{}, zerolog.Nop())
		assert.Nil(t, c.HasProAccess(context.Background(), "tok", "P-1"))
	})
}
