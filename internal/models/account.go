package models

import "time"

// Account is a chayns account created by the registration workflow and
// persisted for later reuse.
type Account struct {
	Email     string
	Password  string
	UserID    int64
	PersonID  string
	CreatedAt time.Time
}
