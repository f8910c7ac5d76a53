package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PositionRepository handles custodian snapshot records. Positions are
// append-only, like trades.
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// Insert appends a new position snapshot record
func (r *PositionRepository) Insert(q Querier, pos Position) error {
	now := time.Now().Format(time.RFC3339)

	query := `
		INSERT INTO positions
		(report_date, account_id, ticker, shares, market_value, custodian_ref, source_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.Exec(query,
		pos.ReportDate,
		pos.AccountID,
		pos.Ticker,
		pos.Shares,
		pos.MarketValue.String(),
		nullStringPtr(pos.CustodianRef),
		pos.SourceFile,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}

	r.log.Debug().
		Str("account_id", pos.AccountID).
		Str("ticker", pos.Ticker).
		Int64("shares", pos.Shares).
		Msg("Position inserted")

	return nil
}

// GetForAccountAndDate returns snapshot rows for one account on an exact
// report date
func (r *PositionRepository) GetForAccountAndDate(accountID, reportDate string) ([]Position, error) {
	query := `
		SELECT id, report_date, account_id, ticker, shares, market_value, custodian_ref, source_file, created_at
		FROM positions
		WHERE account_id = ? AND report_date = ?
		ORDER BY ticker ASC
	`
	return r.queryPositions(query, accountID, reportDate)
}

// GetForDate returns every snapshot row for an exact report date
func (r *PositionRepository) GetForDate(reportDate string) ([]Position, error) {
	query := `
		SELECT id, report_date, account_id, ticker, shares, market_value, custodian_ref, source_file, created_at
		FROM positions
		WHERE report_date = ?
		ORDER BY account_id ASC, ticker ASC
	`
	return r.queryPositions(query, reportDate)
}

// Count returns the number of stored position records
func (r *PositionRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM positions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", err)
	}
	return count, nil
}

func (r *PositionRepository) queryPositions(query string, args ...interface{}) ([]Position, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

func scanPosition(rows *sql.Rows) (Position, error) {
	var pos Position
	var marketValue string
	var custodianRef, sourceFile sql.NullString

	err := rows.Scan(
		&pos.ID,
		&pos.ReportDate,
		&pos.AccountID,
		&pos.Ticker,
		&pos.Shares,
		&marketValue,
		&custodianRef,
		&sourceFile,
		&pos.CreatedAt,
	)
	if err != nil {
		return Position{}, err
	}

	mv, err := decimal.NewFromString(marketValue)
	if err != nil {
		return Position{}, fmt.Errorf("invalid stored market value %q: %w", marketValue, err)
	}
	pos.MarketValue = mv

	if custodianRef.Valid {
		pos.CustodianRef = &custodianRef.String
	}
	if sourceFile.Valid {
		pos.SourceFile = sourceFile.String
	}

	return pos, nil
}
