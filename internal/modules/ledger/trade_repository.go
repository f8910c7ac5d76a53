package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TradeRepository handles canonical trade records. Trades are append-only:
// there is no update or delete path.
type TradeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:  db,
		log: log.With().Str("repo", "trade").Logger(),
	}
}

// Insert appends a new trade record
func (r *TradeRepository) Insert(q Querier, trade Trade) error {
	now := time.Now().Format(time.RFC3339)

	query := `
		INSERT INTO trades
		(trade_date, account_id, ticker, quantity, price, trade_type,
		 settlement_date, market_value, source_system, file_format, source_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.Exec(query,
		trade.TradeDate,
		trade.AccountID,
		trade.Ticker,
		trade.Quantity,
		nullDecimalPtr(trade.Price),
		nullStringPtr(trade.TradeType),
		nullStringPtr(trade.SettlementDate),
		nullDecimalPtr(trade.MarketValue),
		nullStringPtr(trade.SourceSystem),
		trade.FileFormat,
		trade.SourceFile,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	r.log.Debug().
		Str("account_id", trade.AccountID).
		Str("ticker", trade.Ticker).
		Int64("quantity", trade.Quantity).
		Msg("Trade inserted")

	return nil
}

// GetForTickerUpTo returns all trades for (account, ticker) dated on or
// before the given date, ordered by trade date
func (r *TradeRepository) GetForTickerUpTo(accountID, ticker, date string) ([]Trade, error) {
	query := `
		SELECT id, trade_date, account_id, ticker, quantity, price, trade_type,
		       settlement_date, market_value, source_system, file_format, source_file, created_at
		FROM trades
		WHERE account_id = ? AND ticker = ? AND trade_date <= ?
		ORDER BY trade_date ASC
	`
	return r.queryTrades(query, accountID, ticker, date)
}

// GetForAccountUpTo returns all trades for an account dated on or before the
// given date, ordered by trade date
func (r *TradeRepository) GetForAccountUpTo(accountID, date string) ([]Trade, error) {
	query := `
		SELECT id, trade_date, account_id, ticker, quantity, price, trade_type,
		       settlement_date, market_value, source_system, file_format, source_file, created_at
		FROM trades
		WHERE account_id = ? AND trade_date <= ?
		ORDER BY trade_date ASC
	`
	return r.queryTrades(query, accountID, date)
}

// GetAllUpTo returns every trade dated on or before the given date, ordered
// by trade date
func (r *TradeRepository) GetAllUpTo(date string) ([]Trade, error) {
	query := `
		SELECT id, trade_date, account_id, ticker, quantity, price, trade_type,
		       settlement_date, market_value, source_system, file_format, source_file, created_at
		FROM trades
		WHERE trade_date <= ?
		ORDER BY trade_date ASC
	`
	return r.queryTrades(query, date)
}

// Count returns the number of stored trades
func (r *TradeRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM trades").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}

func (r *TradeRepository) queryTrades(query string, args ...interface{}) ([]Trade, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

func scanTrade(rows *sql.Rows) (Trade, error) {
	var trade Trade
	var price, tradeType, settlementDate, marketValue, sourceSystem, sourceFile sql.NullString

	err := rows.Scan(
		&trade.ID,
		&trade.TradeDate,
		&trade.AccountID,
		&trade.Ticker,
		&trade.Quantity,
		&price,
		&tradeType,
		&settlementDate,
		&marketValue,
		&sourceSystem,
		&trade.FileFormat,
		&sourceFile,
		&trade.CreatedAt,
	)
	if err != nil {
		return Trade{}, err
	}

	if price.Valid {
		d, err := decimal.NewFromString(price.String)
		if err != nil {
			return Trade{}, fmt.Errorf("invalid stored price %q: %w", price.String, err)
		}
		trade.Price = &d
	}
	if marketValue.Valid {
		d, err := decimal.NewFromString(marketValue.String)
		if err != nil {
			return Trade{}, fmt.Errorf("invalid stored market value %q: %w", marketValue.String, err)
		}
		trade.MarketValue = &d
	}
	if tradeType.Valid {
		trade.TradeType = &tradeType.String
	}
	if settlementDate.Valid {
		trade.SettlementDate = &settlementDate.String
	}
	if sourceSystem.Valid {
		trade.SourceSystem = &sourceSystem.String
	}
	if sourceFile.Valid {
		trade.SourceFile = sourceFile.String
	}

	return trade, nil
}

func nullDecimalPtr(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}
