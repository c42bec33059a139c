package database

import (
	"database/sql"
	"time"
)

// Attempt kinds recorded in the audit trail.
const (
	AttemptKindLogin    = "login"
	AttemptKindRegister = "register"
)

// Attempt is one audited workflow run: outcome and timing only, no
// secrets.
type Attempt struct {
	ID        int64
	Kind      string
	Username  string
	Outcome   string
	Reason    string
	ElapsedMS int64
	CreatedAt time.Time
}

// AttemptRepository records workflow outcomes.
type AttemptRepository struct {
	db *sql.DB
}

// NewAttemptRepository creates a new attempt repository
func NewAttemptRepository(db *DB) *AttemptRepository {
	return &AttemptRepository{db: db.GetConn()}
}

// Record stores one attempt outcome.
func (ar *AttemptRepository) Record(kind, username, outcome, reason string, elapsed time.Duration) error {
	_, err := ar.db.Exec(`
		INSERT INTO attempts (kind, username, outcome, reason, elapsed_ms) VALUES (?, ?, ?, ?, ?)
	`, kind, username, outcome, reason, elapsed.Milliseconds())
	return err
}

// Recent returns the newest attempts, most recent first.
func (ar *AttemptRepository) Recent(limit int) ([]Attempt, error) {
	rows, err := ar.db.Query(`
		SELECT id, kind, username, outcome, COALESCE(reason, ''), elapsed_ms, created_at
		FROM attempts ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.Kind, &a.Username, &a.Outcome, &a.Reason, &a.ElapsedMS, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}
