// Package login drives the chayns.de login flow through a browser
// session and extracts the resulting credentials.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chayns-login-service/internal/browser"
	"chayns-login-service/internal/models"
)

// Page landmarks of the chayns login flow. The login form lives in a
// cross-origin iframe served from login.chayns.net.
const (
	selLoginButton    = "button.beta-chayns-button"
	xpathLoginButton  = `//button[contains(text(), 'Anmelden')]`
	loginFrameURL     = "login.chayns.net"
	xpathOtherUser    = `/html/body/div[1]/div/div[1]/div/div[2]/div[2]/div/div/div[2]`
	selEmailInput     = "#CC_INPUT_0"
	selEmailNext      = ".form__email__wrapper__button"
	selPasswordInput  = "#CC_INPUT_3"
	selPasswordSubmit = ".form__password-wrapper__button"
	selHiddenUserInfo = "input[type='hidden']"
	// cookieTokenPrefix marks the access token cookie; the suffix varies
	// per site.
	cookieTokenPrefix = "at_"
)

// errProbeJS returns the login form's visible error text, or "" when no
// error indicator is shown. Hidden template nodes are skipped.
const errProbeJS = `(() => {
	for (const el of document.querySelectorAll('[class*="error"], [class*="invalid"]')) {
		if (el.offsetParent === null) continue;
		if (el.textContent && el.textContent.trim()) {
			return el.textContent.trim().slice(0, 200);
		}
	}
	const text = document.body && document.body.innerText ? document.body.innerText.toLowerCase() : '';
	for (const hint of ['falsches passwort', 'wrong password', 'incorrect password']) {
		if (text.includes(hint)) {
			return hint;
		}
	}
	return '';
})()`

// Config bounds every wait of the workflow.
type Config struct {
	LoginURL    string
	IdentityURL string
	// ElementWait bounds each locate-with-wait step.
	ElementWait time.Duration
	// TokenWait bounds the wait for the access token cookie after the
	// password was submitted.
	TokenWait    time.Duration
	PollInterval time.Duration
	SettleDelay  time.Duration
}

// Workflow performs one login attempt per call. Concurrent calls each
// acquire their own browser session.
type Workflow struct {
	sessions browser.Factory
	cfg      Config
	log      zerolog.Logger
}

func New(sessions browser.Factory, cfg Config, log zerolog.Logger) *Workflow {
	return &Workflow{sessions: sessions, cfg: cfg, log: log}
}

// Attempt runs a single login attempt. It always returns a LoginResult,
// never panics past its boundary, and releases the browser session on
// every exit path.
func (w *Workflow) Attempt(ctx context.Context, cred models.Credential) (result models.LoginResult) {
	log := w.log.With().
		Str("attempt_id", uuid.NewString()).
		Str("username", cred.Username).
		Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = models.Failure(models.ReasonAutomation, fmt.Sprintf("automation panic: %v", r))
		}
		evt := log.Info()
		if !result.OK() {
			evt = log.Warn().Str("reason", string(result.Reason)).Str("detail", result.Detail)
		}
		evt.Dur("elapsed", time.Since(start)).Bool("success", result.OK()).Msg("login attempt finished")
	}()

	sess, err := w.sessions.NewSession(ctx)
	if err != nil {
		return models.Failure(models.ReasonAutomation, fmt.Sprintf("failed to open browser session: %v", err))
	}
	defer sess.Close()

	return w.run(sess, cred, log)
}

func (w *Workflow) run(sess browser.Session, cred models.Credential, log zerolog.Logger) models.LoginResult {
	if err := sess.Navigate(w.cfg.LoginURL); err != nil {
		return automationFailure("navigate login page", err)
	}
	if err := sess.WaitVisible(browser.Query("body"), w.cfg.ElementWait); err != nil {
		return waitFailure("login page body", err)
	}
	sess.Sleep(w.cfg.SettleDelay)

	if res := w.openLoginForm(sess, log); !res.OK() && res.Reason != "" {
		return res
	}

	if err := sess.SwitchFrame(loginFrameURL, w.cfg.ElementWait); err != nil {
		return waitFailure("login frame", err)
	}

	// A previously remembered user shows an account chooser first; pick
	// the "other user" entry to reach the e-mail input.
	if ok, err := sess.Exists(browser.Search(xpathOtherUser)); err == nil && ok {
		log.Debug().Msg("account chooser present, selecting other user")
		if err := sess.Click(browser.Search(xpathOtherUser)); err != nil {
			return automationFailure("select other user", err)
		}
		sess.Sleep(time.Second)
	}

	if err := sess.WaitVisible(browser.Query(selEmailInput), w.cfg.ElementWait); err != nil {
		return waitFailure("email input", err)
	}
	if err := sess.SendKeys(browser.Query(selEmailInput), cred.Username); err != nil {
		return automationFailure("type email", err)
	}
	sess.Sleep(time.Second)
	if err := sess.Click(browser.Query(selEmailNext)); err != nil {
		return automationFailure("submit email", err)
	}
	sess.Sleep(time.Second)

	if err := sess.WaitVisible(browser.Query(selPasswordInput), w.cfg.ElementWait); err != nil {
		// An unknown account never reaches the password step; surface the
		// page's own error text when there is one.
		if text := w.probeError(sess); text != "" {
			return models.Failure(models.ReasonInvalidCredentials, text)
		}
		return waitFailure("password input", err)
	}
	if err := sess.SendKeys(browser.Query(selPasswordInput), cred.Password); err != nil {
		return automationFailure("type password", err)
	}
	sess.Sleep(time.Second)
	if err := sess.Click(browser.Query(selPasswordSubmit)); err != nil {
		return automationFailure("submit password", err)
	}

	token, res := w.waitForToken(sess)
	if !res.OK() && res.Reason != "" {
		return res
	}
	log.Debug().Msg("access token cookie observed")

	return w.extractUserInfo(sess, cred.Username, token)
}

// openLoginForm clicks the page's login entry button, falling back from
// the stable CSS class to a text match.
func (w *Workflow) openLoginForm(sess browser.Session, log zerolog.Logger) models.LoginResult {
	if err := sess.WaitVisible(browser.Query(selLoginButton), w.cfg.ElementWait); err == nil {
		if err := sess.Click(browser.Query(selLoginButton)); err != nil {
			return automationFailure("click login button", err)
		}
		return models.LoginResult{}
	} else if !errors.Is(err, context.DeadlineExceeded) {
		return automationFailure("locate login button", err)
	}

	log.Debug().Msg("login button class not found, matching by text")
	ok, err := sess.Exists(browser.Search(xpathLoginButton))
	if err != nil {
		return automationFailure("locate login button", err)
	}
	if !ok {
		return models.Failure(models.ReasonElementNotFound, "login button not found")
	}
	if err := sess.Click(browser.Search(xpathLoginButton)); err != nil {
		return automationFailure("click login button", err)
	}
	return models.LoginResult{}
}

// waitForToken polls for the at_ access token cookie until TokenWait
// expires, watching the login frame for an explicit error indicator.
func (w *Workflow) waitForToken(sess browser.Session) (string, models.LoginResult) {
	deadline := time.Now().Add(w.cfg.TokenWait)
	for {
		cookies, err := sess.Cookies()
		if err != nil {
			return "", automationFailure("read cookies", err)
		}
		for _, c := range cookies {
			if strings.HasPrefix(c.Name, cookieTokenPrefix) && c.Value != "" {
				return c.Value, models.LoginResult{}
			}
		}
		if text := w.probeError(sess); text != "" {
			return "", models.Failure(models.ReasonInvalidCredentials, text)
		}
		if time.Now().After(deadline) {
			return "", models.Failure(models.ReasonTimeout,
				fmt.Sprintf("no access token cookie within %s", w.cfg.TokenWait))
		}
		sess.Sleep(w.cfg.PollInterval)
	}
}

// extractUserInfo reads the identity page's hidden input, which carries
// the signed-in user as JSON. Hidden inputs never render, so the input
// is located by presence, not visibility.
func (w *Workflow) extractUserInfo(sess browser.Session, username, token string) models.LoginResult {
	sess.SwitchToTop()
	if err := sess.Navigate(w.cfg.IdentityURL); err != nil {
		return automationFailure("navigate identity page", err)
	}
	deadline := time.Now().Add(w.cfg.ElementWait)
	for {
		ok, err := sess.Exists(browser.Query(selHiddenUserInfo))
		if err != nil {
			return automationFailure("locate user info", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return models.Failure(models.ReasonIncompleteResult, "identity page carries no user info")
		}
		sess.Sleep(w.cfg.PollInterval)
	}

	var raw string
	expr := fmt.Sprintf(`document.querySelector(%q).value`, selHiddenUserInfo)
	if err := sess.Evaluate(expr, &raw); err != nil {
		return automationFailure("read user info", err)
	}

	var info struct {
		User struct {
			UserID   int64  `json:"userId"`
			PersonID string `json:"personId"`
		} `json:"user"`
	}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return models.Failure(models.ReasonIncompleteResult, fmt.Sprintf("user info is not valid JSON: %v", err))
	}
	if info.User.UserID == 0 || info.User.PersonID == "" || token == "" {
		return models.Failure(models.ReasonIncompleteResult, "user info is missing required fields")
	}

	return models.Success(models.LoginPayload{
		Email:    username,
		UserID:   info.User.UserID,
		PersonID: info.User.PersonID,
		Token:    token,
	})
}

func (w *Workflow) probeError(sess browser.Session) string {
	var text string
	if err := sess.Evaluate(errProbeJS, &text); err != nil {
		return ""
	}
	return text
}

func waitFailure(what string, err error) models.LoginResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.Failure(models.ReasonElementNotFound, what+" not found within wait bound")
	}
	return automationFailure("wait for "+what, err)
}

func automationFailure(step string, err error) models.LoginResult {
	return models.Failure(models.ReasonAutomation, fmt.Sprintf("%s: %v", step, err))
}
