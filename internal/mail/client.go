// Package mail talks to the DuckMail disposable-mailbox API and digs
// the account verification link out of incoming messages.
package mail

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	httpclient "github.com/appleboy/go-httpclient"
	"github.com/rs/zerolog"
)

// Subject patterns and sender whitelist that mark a chayns verification
// mail.
var (
	verificationSubjects = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Welcome to chayns`),
		regexp.MustCompile(`(?i)verify`),
		regexp.MustCompile(`(?i)activate`),
		regexp.MustCompile(`(?i)confirm`),
		regexp.MustCompile(`(?i)Willkommen`),
		regexp.MustCompile(`(?i)bestätigen`),
	}
	verificationSenders = []string{
		"noreply@chayns.de",
		"no-reply@chayns.de",
	}
)

// Config carries the DuckMail endpoint settings.
type Config struct {
	BaseURL string
	Domain  string
	Timeout time.Duration
}

// Account is one provisioned mailbox.
type Account struct {
	Address  string
	Password string
	ID       string
	Token    string
}

// MessageSummary is a mailbox listing entry.
type MessageSummary struct {
	ID          string
	Subject     string
	FromAddress string
	FromName    string
	CreatedAt   string
	Seen        bool
}

// MessageDetail is a fully fetched message.
type MessageDetail struct {
	ID          string
	Subject     string
	FromAddress string
	Text        string
	HTML        []string
}

// Client is a DuckMail API client bound to at most one mailbox account.
type Client struct {
	base    string
	domain  string
	http    *http.Client
	log     zerolog.Logger
	account *Account
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		domain: cfg.Domain,
		http:   httpclient.NewAuthClient("none", "", httpclient.WithTimeout(cfg.Timeout)),
		log:    log,
	}
}

// CreateAccount provisions a fresh mailbox with a random address and
// password and fetches its bearer token.
func (c *Client) CreateAccount(ctx context.Context) (*Account, error) {
	address := fmt.Sprintf("%s@%s", randomString(10, "abcdefghijklmnopqrstuvwxyz0123456789"), c.domain)
	password := randomString(16, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%")

	var created struct {
		ID    string `json:"id"`
		AtID  string `json:"@id"`
		Error string `json:"error"`
	}
	err := c.do(ctx, http.MethodPost, "/accounts",
		map[string]string{"address": address, "password": password}, &created)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailbox: %w", err)
	}

	id := created.ID
	if id == "" && created.AtID != "" {
		parts := strings.Split(created.AtID, "/")
		id = parts[len(parts)-1]
	}

	var tok struct {
		Token string `json:"token"`
	}
	err = c.do(ctx, http.MethodPost, "/token",
		map[string]string{"address": address, "password": password}, &tok)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mailbox token: %w", err)
	}
	if tok.Token == "" {
		return nil, fmt.Errorf("mailbox token response carried no token")
	}

	c.account = &Account{Address: address, Password: password, ID: id, Token: tok.Token}
	c.log.Info().Str("mailbox", address).Msg("mailbox provisioned")
	return c.account, nil
}

// Messages lists the mailbox, newest first.
func (c *Client) Messages(ctx context.Context) ([]MessageSummary, error) {
	if c.account == nil {
		return nil, fmt.Errorf("no mailbox provisioned")
	}

	var listing struct {
		Members []struct {
			ID      string `json:"id"`
			Subject string `json:"subject"`
			From    struct {
				Address string `json:"address"`
				Name    string `json:"name"`
			} `json:"from"`
			CreatedAt string `json:"createdAt"`
			Seen      bool   `json:"seen"`
		} `json:"hydra:member"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages", nil, &listing); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]MessageSummary, 0, len(listing.Members))
	for _, m := range listing.Members {
		messages = append(messages, MessageSummary{
			ID:          m.ID,
			Subject:     m.Subject,
			FromAddress: m.From.Address,
			FromName:    m.From.Name,
			CreatedAt:   m.CreatedAt,
			Seen:        m.Seen,
		})
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt > messages[j].CreatedAt
	})
	return messages, nil
}

// Message fetches one message body. The html field arrives as either a
// string or an array of strings depending on the mail.
func (c *Client) Message(ctx context.Context, id string) (*MessageDetail, error) {
	if c.account == nil {
		return nil, fmt.Errorf("no mailbox provisioned")
	}

	var raw struct {
		ID      string `json:"id"`
		Subject string `json:"subject"`
		From    struct {
			Address string `json:"address"`
		} `json:"from"`
		Text string          `json:"text"`
		HTML json.RawMessage `json:"html"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages/"+id, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}

	detail := &MessageDetail{
		ID:          raw.ID,
		Subject:     raw.Subject,
		FromAddress: raw.From.Address,
		Text:        raw.Text,
	}
	if len(raw.HTML) > 0 {
		var many []string
		if err := json.Unmarshal(raw.HTML, &many); err == nil {
			detail.HTML = many
		} else {
			var one string
			if err := json.Unmarshal(raw.HTML, &one); err == nil {
				detail.HTML = []string{one}
			}
		}
	}
	return detail, nil
}

// IsVerification reports whether a listing entry looks like the chayns
// verification mail, by sender whitelist first, subject patterns second.
func (c *Client) IsVerification(msg MessageSummary) bool {
	for _, sender := range verificationSenders {
		if strings.EqualFold(msg.FromAddress, sender) {
			return true
		}
	}
	for _, re := range verificationSubjects {
		if re.MatchString(msg.Subject) {
			return true
		}
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.account != nil && c.account.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.account.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("duckmail returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func randomString(n int, charset string) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(charset)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken;
			// fall back to the first character rather than aborting.
			idx = big.NewInt(0)
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
