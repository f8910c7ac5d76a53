package ledger

import (
	"github.com/shopspring/decimal"
)

// File format identifiers, as declared by the caller at ingestion time.
const (
	FormatCSVTrades  = "CSV_FORMAT1"
	FormatPipeTrades = "PIPE_FORMAT2"
	FormatYAMLBank   = "YAML_POSITIONS"
)

// DateLayout is the canonical date representation used across the ledger.
// Dates are stored as TEXT so lexicographic comparison matches chronology.
const DateLayout = "2006-01-02"

// Account is master data keyed by the external account identifier. Accounts
// are created implicitly the first time any record references an unknown ID.
// The custodian name is assigned once and never overwritten afterwards.
type Account struct {
	AccountID     string  `json:"account_id"`
	CustodianName *string `json:"custodian_name,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// Trade is an immutable canonical transaction record. Quantity is signed:
// positive for long/buy, negative for short/sell. Exactly one of Price and
// MarketValue is guaranteed present; both may be.
type Trade struct {
	ID             int64            `json:"id"`
	TradeDate      string           `json:"trade_date"`
	AccountID      string           `json:"account_id"`
	Ticker         string           `json:"ticker"`
	Quantity       int64            `json:"quantity"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	TradeType      *string          `json:"trade_type,omitempty"`
	SettlementDate *string          `json:"settlement_date,omitempty"`
	MarketValue    *decimal.Decimal `json:"market_value,omitempty"`
	SourceSystem   *string          `json:"source_system,omitempty"`
	FileFormat     string           `json:"file_format"`
	SourceFile     string           `json:"source_file"`
	CreatedAt      string           `json:"created_at"`
}

// Position is an immutable custodian snapshot record as of a report date.
// Multiple rows for the same (account, ticker) may exist only across
// different report dates.
type Position struct {
	ID           int64           `json:"id"`
	ReportDate   string          `json:"report_date"`
	AccountID    string          `json:"account_id"`
	Ticker       string          `json:"ticker"`
	Shares       int64           `json:"shares"`
	MarketValue  decimal.Decimal `json:"market_value"`
	CustodianRef *string         `json:"custodian_ref,omitempty"`
	SourceFile   string          `json:"source_file"`
	CreatedAt    string          `json:"created_at"`
}
