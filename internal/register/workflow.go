// Package register automates new chayns account creation: it provisions
// a disposable mailbox, walks the registration form, confirms the
// address through the verification mail, sets the password and extracts
// the resulting credentials.
package register

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chayns-login-service/internal/browser"
	"chayns-login-service/internal/mail"
	"chayns-login-service/internal/models"
)

// State names the registration flow steps, reported back to the caller
// on failure.
type State string

const (
	StateInit             State = "init"
	StateMailboxCreated   State = "duckmail_created"
	StateSiteOpened       State = "site_opened"
	StateLoginEntry       State = "login_entry"
	StateEmailEntered     State = "email_entered"
	StateBranchDetected   State = "branch_detected"
	StateRegisterForm     State = "register_form"
	StateWaitingEmail     State = "waiting_email"
	StateConfirmationLink State = "confirmation_link"
	StateSetPassword      State = "set_password"
	StateVerifyLogin      State = "verify_login"
	StateComplete         State = "complete"
)

const (
	loginFrameURL     = "login.chayns.net"
	selEmailPhone     = `input[name="email-phone"]`
	selFirstName      = `input[data-autoreg="first-name"]`
	selLastName       = `input[data-autoreg="last-name"]`
	cookieTokenPrefix = "at_"
)

var createAccountKeywords = []string{
	"create account", "konto erstellen", "registrieren", "register", "sign up",
}

// AccountSaver persists completed registrations.
type AccountSaver interface {
	Save(models.Account) error
}

// Config bounds the registration flow.
type Config struct {
	SiteURL string
	// Timeout caps the whole run.
	Timeout         time.Duration
	DefaultPassword string
	ElementWait     time.Duration
	TokenWait       time.Duration
	PollInterval    time.Duration
	SettleDelay     time.Duration
	// MailPollLimit x MailPollWait bounds the verification-mail wait.
	MailPollLimit int
	MailPollWait  time.Duration
}

// Workflow runs one registration at a time.
type Workflow struct {
	sessions browser.Factory
	// newMailbox builds a fresh mailbox client per run; each run owns
	// exactly one mailbox.
	newMailbox func() *mail.Client
	settings   *SettingsClient
	accounts   AccountSaver
	cfg        Config
	log        zerolog.Logger
	mu         sync.Mutex
}

func New(sessions browser.Factory, newMailbox func() *mail.Client, settings *SettingsClient, accounts AccountSaver, cfg Config, log zerolog.Logger) *Workflow {
	return &Workflow{
		sessions:   sessions,
		newMailbox: newMailbox,
		settings:   settings,
		accounts:   accounts,
		cfg:        cfg,
		log:        log,
	}
}

// Run executes the registration flow. Only one run may be in flight;
// others get ErrBusy immediately. On failure the returned error is a
// *FlowError carrying the state reached.
func (w *Workflow) Run(ctx context.Context, req models.RegisterRequest) (*models.RegisterResult, error) {
	if !w.mu.TryLock() {
		return nil, ErrBusy
	}
	defer w.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	log := w.log.With().Str("attempt_id", uuid.NewString()).Logger()
	start := time.Now()

	result, err := w.run(ctx, req, log)
	if err != nil {
		var fe *FlowError
		if !errors.As(err, &fe) {
			status := http.StatusInternalServerError
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			fe = flowErr(StateInit, status, "%v", err)
		}
		log.Warn().Str("state", string(fe.State)).Dur("elapsed", time.Since(start)).
			Str("detail", fe.Msg).Msg("registration failed")
		return nil, fe
	}

	log.Info().Int64("userid", result.UserID).Str("personid", result.PersonID).
		Dur("elapsed", time.Since(start)).Msg("registration complete")
	return result, nil
}

func (w *Workflow) run(ctx context.Context, req models.RegisterRequest, log zerolog.Logger) (*models.RegisterResult, error) {
	password := req.Password
	if password == "" {
		password = w.cfg.DefaultPassword
	}

	state := StateInit

	mailbox := w.newMailbox()
	account, err := mailbox.CreateAccount(ctx)
	if err != nil {
		return nil, stepErr(state, err, "failed to provision mailbox")
	}
	state = StateMailboxCreated
	email := account.Address

	sess, err := w.sessions.NewSession(ctx)
	if err != nil {
		return nil, stepErr(state, err, "failed to open browser session")
	}
	defer sess.Close()

	// Open the site and enter the login dialog.
	if err := sess.Navigate(w.cfg.SiteURL); err != nil {
		return nil, stepErr(state, err, "failed to open site")
	}
	if err := sess.WaitVisible(browser.Query("body"), w.cfg.ElementWait); err != nil {
		return nil, stepErr(state, err, "site did not load")
	}
	sess.Sleep(w.cfg.SettleDelay)
	state = StateSiteOpened

	if err := w.clickLoginEntry(sess); err != nil {
		return nil, stepErr(state, err, "login entry not found")
	}
	state = StateLoginEntry

	if err := sess.SwitchFrame(loginFrameURL, w.cfg.ElementWait); err != nil {
		return nil, stepErr(state, err, "login frame not found")
	}
	if err := sess.WaitVisible(browser.Query(selEmailPhone), w.cfg.ElementWait); err != nil {
		return nil, stepErr(state, err, "email input not found")
	}
	// Trailing tab commits the field so the continue button enables.
	if err := sess.SendKeys(browser.Query(selEmailPhone), email+"\t"); err != nil {
		return nil, stepErr(state, err, "failed to type email")
	}
	sess.Sleep(time.Second)
	if err := w.clickScript(sess, jsClickContinue); err != nil {
		return nil, stepErr(state, err, "continue button not found")
	}
	state = StateEmailEntered

	if err := w.detectBranch(ctx, sess, email, log); err != nil {
		return nil, err
	}
	state = StateBranchDetected

	if err := w.fillNameForm(ctx, sess, req); err != nil {
		return nil, err
	}
	state = StateRegisterForm
	log.Info().Str("mailbox", email).Msg("registration form submitted, waiting for mail")

	state = StateWaitingEmail
	poller := &mail.Poller{Client: mailbox, Interval: w.cfg.MailPollWait, MaxAttempts: w.cfg.MailPollLimit}
	link, err := poller.WaitForConfirmationLink(ctx)
	if err != nil {
		if errors.Is(err, mail.ErrNoVerificationMail) || errors.Is(err, context.DeadlineExceeded) {
			return nil, flowErr(state, http.StatusGatewayTimeout, "verification mail did not arrive")
		}
		return nil, stepErr(state, err, "mailbox poll failed")
	}
	state = StateConfirmationLink

	if err := w.setPassword(sess, link, password); err != nil {
		return nil, err
	}
	state = StateSetPassword

	token, userID, personID, err := w.verifyLogin(sess)
	if err != nil {
		return nil, err
	}

	result := &models.RegisterResult{
		Email:    email,
		Password: password,
		UserID:   userID,
		PersonID: personID,
		Token:    token,
	}

	// Post-registration calls are best effort: the account exists either
	// way.
	if w.settings != nil {
		w.settings.PostRegister(ctx, token)
		result.HasProAccess = w.settings.HasProAccess(ctx, token, personID)
	}

	if w.accounts != nil {
		if err := w.accounts.Save(models.Account{
			Email:    email,
			Password: password,
			UserID:   userID,
			PersonID: personID,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to persist registered account")
		}
	}

	return result, nil
}

func (w *Workflow) clickLoginEntry(sess browser.Session) error {
	return w.clickScript(sess, jsClickLoginEntry)
}

// clickScript runs a click-by-scan script and fails when nothing
// matched.
func (w *Workflow) clickScript(sess browser.Session, script string) error {
	deadline := time.Now().Add(w.cfg.ElementWait)
	for {
		var clicked bool
		if err := sess.Evaluate(script, &clicked); err != nil {
			return err
		}
		if clicked {
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		sess.Sleep(w.cfg.PollInterval)
	}
}

// detectBranch decides between "address already registered" (a password
// input shows up) and "new account" (register keywords or name inputs
// show up).
func (w *Workflow) detectBranch(ctx context.Context, sess browser.Session, email string, log zerolog.Logger) error {
	sess.Sleep(w.cfg.SettleDelay)

	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var hasPassword bool
		if err := sess.Evaluate(jsHasVisiblePassword, &hasPassword); err != nil {
			return stepErr(StateEmailEntered, err, "branch probe failed")
		}
		if hasPassword {
			return flowErr(StateBranchDetected, http.StatusConflict, "address already registered: %s", email)
		}

		var pageText string
		if err := sess.Evaluate(jsPageText, &pageText); err != nil {
			return stepErr(StateEmailEntered, err, "branch probe failed")
		}
		for _, kw := range createAccountKeywords {
			if strings.Contains(pageText, kw) {
				log.Debug().Str("keyword", kw).Msg("register branch detected")
				var clicked bool
				if err := sess.Evaluate(jsClickRegister, &clicked); err == nil && clicked {
					sess.Sleep(w.cfg.SettleDelay)
				}
				return nil
			}
		}

		var nameInputs int
		if err := sess.Evaluate(jsVisibleNameInputCount, &nameInputs); err == nil && nameInputs > 0 {
			log.Debug().Int("inputs", nameInputs).Msg("register form already visible")
			return nil
		}

		sess.Sleep(time.Second)
	}
	return flowErr(StateEmailEntered, http.StatusUnprocessableEntity, "could not determine register/login branch")
}

func (w *Workflow) fillNameForm(ctx context.Context, sess browser.Session, req models.RegisterRequest) error {
	const maxAttempts = 10
	tagged := false
	for attempt := 0; attempt < maxAttempts && !tagged; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sess.Evaluate(jsTagNameInputs, &tagged); err != nil {
			return stepErr(StateBranchDetected, err, "name input probe failed")
		}
		if !tagged {
			sess.Sleep(2 * time.Second)
		}
	}
	if !tagged {
		return flowErr(StateRegisterForm, http.StatusUnprocessableEntity, "name inputs not found")
	}

	if err := sess.SendKeys(browser.Query(selFirstName), req.FirstName); err != nil {
		return stepErr(StateRegisterForm, err, "failed to type first name")
	}
	if err := sess.SendKeys(browser.Query(selLastName), req.LastName); err != nil {
		return stepErr(StateRegisterForm, err, "failed to type last name")
	}
	sess.Sleep(time.Second)
	if err := w.clickScript(sess, jsClickContinue); err != nil {
		return stepErr(StateRegisterForm, err, "submit button not found")
	}
	return nil
}

// setPassword opens the confirmation link and sets the account password
// on the page behind it.
func (w *Workflow) setPassword(sess browser.Session, link, password string) error {
	sess.SwitchToTop()
	if err := sess.Navigate(link); err != nil {
		return stepErr(StateConfirmationLink, err, "failed to open confirmation link")
	}
	if err := sess.WaitVisible(browser.Query("body"), w.cfg.ElementWait); err != nil {
		return stepErr(StateConfirmationLink, err, "confirmation page did not load")
	}
	sess.Sleep(w.cfg.SettleDelay)

	// The password form may render inline or inside the login frame.
	if err := sess.SwitchFrame(loginFrameURL, 5*time.Second); err != nil {
		sess.SwitchToTop()
	}

	var count int
	deadline := time.Now().Add(w.cfg.ElementWait)
	for {
		if err := sess.Evaluate(jsTagPasswordInputs, &count); err != nil {
			return stepErr(StateSetPassword, err, "password input probe failed")
		}
		if count > 0 || time.Now().After(deadline) {
			break
		}
		sess.Sleep(w.cfg.PollInterval)
	}
	if count == 0 {
		return flowErr(StateSetPassword, http.StatusUnprocessableEntity, "password inputs not found")
	}

	if err := sess.SendKeys(browser.Query(`input[data-autoreg="password-0"]`), password); err != nil {
		return stepErr(StateSetPassword, err, "failed to type password")
	}
	if count >= 2 {
		if err := sess.SendKeys(browser.Query(`input[data-autoreg="password-1"]`), password); err != nil {
			return stepErr(StateSetPassword, err, "failed to type password confirmation")
		}
	}
	sess.Sleep(time.Second)

	var clicked bool
	if err := sess.Evaluate(jsClickSetPassword, &clicked); err != nil || !clicked {
		if err := w.clickScript(sess, jsClickContinue); err != nil {
			return stepErr(StateSetPassword, err, "set-password button not found")
		}
	}
	sess.Sleep(w.cfg.SettleDelay)
	return nil
}

// verifyLogin waits for the signed-in state and extracts token, user id
// and person id.
func (w *Workflow) verifyLogin(sess browser.Session) (token string, userID int64, personID string, err error) {
	sess.SwitchToTop()

	deadline := time.Now().Add(w.cfg.TokenWait)
	for token == "" {
		cookies, err := sess.Cookies()
		if err != nil {
			return "", 0, "", stepErr(StateVerifyLogin, err, "failed to read cookies")
		}
		for _, c := range cookies {
			if strings.HasPrefix(c.Name, cookieTokenPrefix) && c.Value != "" {
				token = c.Value
				break
			}
		}
		if token != "" {
			break
		}
		if time.Now().After(deadline) {
			return "", 0, "", flowErr(StateVerifyLogin, http.StatusGatewayTimeout, "signed-in cookie did not appear")
		}
		sess.Sleep(w.cfg.PollInterval)
	}

	deadline = time.Now().Add(w.cfg.ElementWait)
	for {
		var ready bool
		if err := sess.Evaluate(jsHasUserInfo, &ready); err == nil && ready {
			break
		}
		if time.Now().After(deadline) {
			return "", 0, "", flowErr(StateVerifyLogin, http.StatusUnprocessableEntity, "user info did not appear")
		}
		sess.Sleep(w.cfg.PollInterval)
	}

	var info struct {
		UserID   int64  `json:"userId"`
		PersonID string `json:"personId"`
	}
	if err := sess.Evaluate(jsUserInfo, &info); err != nil {
		return "", 0, "", stepErr(StateVerifyLogin, err, "failed to read user info")
	}
	if info.UserID == 0 || info.PersonID == "" {
		return "", 0, "", flowErr(StateVerifyLogin, http.StatusUnprocessableEntity, "user info is missing required fields")
	}
	return token, info.UserID, info.PersonID, nil
}

func stepErr(state State, err error, msg string) error {
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	return flowErr(state, status, "%s: %v", msg, err)
}
