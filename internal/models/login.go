package models

// Credential holds the username and password for one login attempt.
// It is never persisted and lives only for the duration of the request.
type Credential struct {
	Username string
	Password string
}

// FailureReason classifies why a login attempt did not produce a token.
type FailureReason string

const (
	// ReasonElementNotFound means an expected page element never appeared
	// within its bounded wait.
	ReasonElementNotFound FailureReason = "element_not_found"
	// ReasonInvalidCredentials means the login page signalled an
	// authentication failure.
	ReasonInvalidCredentials FailureReason = "invalid_credentials"
	// ReasonIncompleteResult means the success indicator was observed but
	// one of the required token fields was missing.
	ReasonIncompleteResult FailureReason = "incomplete_result"
	// ReasonTimeout means the bounded wait for the success indicator expired.
	ReasonTimeout FailureReason = "timeout"
	// ReasonAutomation covers unexpected failures from the browser layer.
	ReasonAutomation FailureReason = "automation_error"
)

// LoginPayload is the token payload returned on a successful login.
type LoginPayload struct {
	Email    string `json:"email"`
	UserID   int64  `json:"userid"`
	PersonID string `json:"personid"`
	Token    string `json:"token"`
}

// LoginResult is the outcome of exactly one login attempt: either a
// payload or a classified failure, never both.
type LoginResult struct {
	Payload *LoginPayload
	Reason  FailureReason
	Detail  string
}

// OK reports whether the attempt produced a token payload.
func (r LoginResult) OK() bool {
	return r.Payload != nil
}

// Success builds a successful LoginResult.
func Success(p LoginPayload) LoginResult {
	return LoginResult{Payload: &p}
}

// Failure builds a failed LoginResult with a classified reason.
func Failure(reason FailureReason, detail string) LoginResult {
	return LoginResult{Reason: reason, Detail: detail}
}

// LoginRequest is the body of POST /aichat/chayns/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ErrorResponse is the JSON body returned for any failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
