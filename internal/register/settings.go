package register

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/appleboy/go-httpclient"
	"github.com/rs/zerolog"
)

// SettingsConfig holds the post-registration endpoints.
type SettingsConfig struct {
	PostRegisterURL string
	// UserSettingsURL carries a %s placeholder for the person id.
	UserSettingsURL string
	Timeout         time.Duration
}

// SettingsClient performs the post-registration API calls against the
// chayns backend. All calls are best effort; the registered account is
// valid even when they fail.
type SettingsClient struct {
	cfg  SettingsConfig
	http *http.Client
	log  zerolog.Logger
}

func NewSettingsClient(cfg SettingsConfig, log zerolog.Logger) *SettingsClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SettingsClient{
		cfg:  cfg,
		http: httpclient.NewAuthClient("none", "", httpclient.WithTimeout(cfg.Timeout)),
		log:  log,
	}
}

// PostRegister fires the warm-up assistant message for the fresh
// account. Failures are logged and swallowed.
func (c *SettingsClient) PostRegister(ctx context.Context, token string) {
	if c.cfg.PostRegisterURL == "" {
		return
	}
	body, _ := json.Marshal(map[string]string{
		"message": "sidekick pro",
		"nerMode": "None",
		"siteId":  "95247-09669",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PostRegisterURL, bytes.NewReader(body))
	if err != nil {
		c.log.Warn().Err(err).Msg("post-register request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("post-register call failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Warn().Int("status", resp.StatusCode).Msg("post-register call rejected")
		return
	}
	c.log.Debug().Int("status", resp.StatusCode).Msg("post-register call done")
}

// HasProAccess looks up the pro flag for the person. Returns nil when
// the lookup fails, so callers can distinguish "unknown" from false.
func (c *SettingsClient) HasProAccess(ctx context.Context, token, personID string) *bool {
	if c.cfg.UserSettingsURL == "" {
		return nil
	}
	url := fmt.Sprintf(c.cfg.UserSettingsURL, personID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("user-settings request build failed")
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("user-settings call failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Msg("user-settings call rejected")
		return nil
	}

	var settings struct {
		HasProAccess bool `json:"hasProAccess"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		c.log.Warn().Err(err).Msg("user-settings decode failed")
		return nil
	}
	return &settings.HasProAccess
}
