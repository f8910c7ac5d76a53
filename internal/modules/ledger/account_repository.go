package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Querier is the subset of database/sql operations the repositories need.
// Both *sql.DB and *sql.Tx satisfy it, so ingestion can run every write of
// one call inside a single transaction.
type Querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// AccountRepository handles account master data operations
type AccountRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sql.DB, log zerolog.Logger) *AccountRepository {
	return &AccountRepository{
		db:  db,
		log: log.With().Str("repo", "account").Logger(),
	}
}

// Ensure creates the account if it does not exist yet, and backfills the
// custodian name when the account has none. A custodian, once set, is never
// overwritten. Returns true when a new account was created.
func (r *AccountRepository) Ensure(q Querier, accountID string, custodian *string) (bool, error) {
	var existing sql.NullString
	err := q.QueryRow("SELECT custodian_name FROM accounts WHERE account_id = ?", accountID).Scan(&existing)

	if errors.Is(err, sql.ErrNoRows) {
		now := time.Now().Format(time.RFC3339)
		_, err := q.Exec(
			"INSERT INTO accounts (account_id, custodian_name, created_at) VALUES (?, ?, ?)",
			accountID, nullStringPtr(custodian), now,
		)
		if err != nil {
			return false, fmt.Errorf("failed to create account: %w", err)
		}

		r.log.Info().
			Str("account_id", accountID).
			Str("custodian", strOrEmpty(custodian)).
			Msg("Created new account")
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up account: %w", err)
	}

	if custodian != nil && !existing.Valid {
		_, err := q.Exec(
			"UPDATE accounts SET custodian_name = ? WHERE account_id = ?",
			*custodian, accountID,
		)
		if err != nil {
			return false, fmt.Errorf("failed to update account custodian: %w", err)
		}

		r.log.Info().
			Str("account_id", accountID).
			Str("custodian", *custodian).
			Msg("Backfilled account custodian")
	}

	return false, nil
}

// GetAll returns all accounts, ordered by account ID
func (r *AccountRepository) GetAll() ([]Account, error) {
	rows, err := r.db.Query("SELECT account_id, custodian_name, created_at FROM accounts ORDER BY account_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var acc Account
		var custodian sql.NullString
		if err := rows.Scan(&acc.AccountID, &custodian, &acc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if custodian.Valid {
			acc.CustodianName = &custodian.String
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// Count returns the number of known accounts
func (r *AccountRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}

func nullStringPtr(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
