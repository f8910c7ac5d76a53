package ledger

import "database/sql"

// LedgerSchema holds the canonical record tables. Decimal amounts are stored
// as TEXT and parsed with shopspring/decimal on scan.
const LedgerSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    account_id TEXT PRIMARY KEY,
    custodian_name TEXT,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
    id INTEGER PRIMARY KEY,
    trade_date TEXT NOT NULL,
    account_id TEXT NOT NULL REFERENCES accounts(account_id),
    ticker TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    price TEXT,
    trade_type TEXT,
    settlement_date TEXT,
    market_value TEXT,
    source_system TEXT,
    file_format TEXT NOT NULL,
    source_file TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_date_account ON trades(trade_date, account_id);
CREATE INDEX IF NOT EXISTS idx_trades_date_ticker ON trades(trade_date, ticker);

CREATE TABLE IF NOT EXISTS positions (
    id INTEGER PRIMARY KEY,
    report_date TEXT NOT NULL,
    account_id TEXT NOT NULL REFERENCES accounts(account_id),
    ticker TEXT NOT NULL,
    shares INTEGER NOT NULL,
    market_value TEXT NOT NULL,
    custodian_ref TEXT,
    source_file TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_date_account ON positions(report_date, account_id);
CREATE INDEX IF NOT EXISTS idx_positions_date_ticker ON positions(report_date, ticker);
`

// InitSchema ensures the ledger tables exist
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(LedgerSchema)
	return err
}
