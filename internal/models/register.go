package models

// RegisterRequest is the body of POST /aichat/chayns/register.
// Password is optional; when empty the configured default is used.
type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password,omitempty"`
}

// RegisterResult is returned after a completed auto-registration run.
// HasProAccess is nil when the settings lookup failed; the registration
// itself is still considered successful in that case.
type RegisterResult struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	UserID       int64  `json:"userid"`
	PersonID     string `json:"personid"`
	Token        string `json:"token"`
	HasProAccess *bool  `json:"has_pro_access"`
}
