package database

import (
	"database/sql"
	"fmt"

	"chayns-login-service/internal/models"
)

// AccountRepository handles account operations
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db.GetConn()}
}

// Save stores one registered account. Re-registering the same address
// overwrites the previous row.
func (ar *AccountRepository) Save(account models.Account) error {
	_, err := ar.db.Exec(`
		INSERT INTO accounts (email, password, user_id, person_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			password = excluded.password,
			user_id = excluded.user_id,
			person_id = excluded.person_id
	`, account.Email, account.Password, account.UserID, account.PersonID)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.Email, err)
	}
	return nil
}

// List returns registered accounts, newest first.
func (ar *AccountRepository) List(limit int) ([]models.Account, error) {
	query := `SELECT email, password, user_id, person_id, created_at FROM accounts ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := ar.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(&account.Email, &account.Password, &account.UserID, &account.PersonID, &account.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

// Count returns the number of registered accounts.
func (ar *AccountRepository) Count() (int, error) {
	var count int
	err := ar.db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&count)
	return count, err
}
