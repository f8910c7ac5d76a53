package ingestion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/clearledger/reconciler/internal/modules/ledger"
)

// Field length limits shared by all formats.
const (
	maxAccountIDLen = 50
	maxTickerLen    = 20
)

// CSVTradeRow is a validated Format 1 (dated CSV) trade row. Quantity here is
// always positive; direction is carried by TradeType and applied by the
// ingestion pipeline.
type CSVTradeRow struct {
	TradeDate      string
	AccountID      string
	Ticker         string
	Quantity       int64
	Price          decimal.Decimal
	TradeType      string
	SettlementDate string
}

// PipeTradeRow is a validated Format 2 (pipe-delimited) trade row. Shares is
// signed: the sign already encodes direction.
type PipeTradeRow struct {
	ReportDate   string
	AccountID    string
	Ticker       string
	Shares       int64
	MarketValue  decimal.Decimal
	SourceSystem string
}

// DerivedPrice returns the per-share price implied by market value and
// shares, or nil when shares is zero.
func (r *PipeTradeRow) DerivedPrice() *decimal.Decimal {
	if r.Shares == 0 {
		return nil
	}
	price := r.MarketValue.Div(decimal.NewFromInt(r.Shares)).Abs()
	return &price
}

// BankSnapshotFile is the raw shape of a Format 3 (YAML) position document.
// Numeric scalars are kept as raw yaml nodes so decimal values survive
// untouched regardless of how the document quotes them.
type BankSnapshotFile struct {
	ReportDate yaml.Node           `yaml:"report_date"`
	Positions  []BankPositionEntry `yaml:"positions"`
}

// BankPositionEntry is one raw position entry within a snapshot document.
type BankPositionEntry struct {
	AccountID    string    `yaml:"account_id"`
	Ticker       string    `yaml:"ticker"`
	Shares       int64     `yaml:"shares"`
	MarketValue  yaml.Node `yaml:"market_value"`
	CustodianRef string    `yaml:"custodian_ref"`
}

// ValidatedBankPosition is a validated snapshot entry ready for persistence.
type ValidatedBankPosition struct {
	AccountID    string
	Ticker       string
	Shares       int64
	MarketValue  decimal.Decimal
	CustodianRef string
}

// ValidateCSVTradeRow validates a single Format 1 row against the field
// contract: dates in YYYY-MM-DD, strictly positive quantity and price,
// BUY/SELL trade type, settlement on or after the trade date.
func ValidateCSVTradeRow(row map[string]string) (*CSVTradeRow, error) {
	tradeDate, err := parseISODate("TradeDate", row["TradeDate"])
	if err != nil {
		return nil, err
	}

	accountID, err := requireString("AccountID", row["AccountID"], maxAccountIDLen)
	if err != nil {
		return nil, err
	}

	ticker, err := requireString("Ticker", row["Ticker"], maxTickerLen)
	if err != nil {
		return nil, err
	}

	quantity, err := parseInt("Quantity", row["Quantity"])
	if err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("Quantity must be greater than 0, got %d", quantity)
	}

	price, err := parseDecimal("Price", row["Price"])
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("Price must be greater than 0, got %s", price)
	}

	tradeType := strings.ToUpper(strings.TrimSpace(row["TradeType"]))
	if tradeType != "BUY" && tradeType != "SELL" {
		return nil, fmt.Errorf("TradeType must be BUY or SELL, got %q", row["TradeType"])
	}

	settlementDate, err := parseISODate("SettlementDate", row["SettlementDate"])
	if err != nil {
		return nil, err
	}
	if settlementDate < tradeDate {
		return nil, fmt.Errorf("settlement date cannot be before trade date")
	}

	return &CSVTradeRow{
		TradeDate:      tradeDate,
		AccountID:      accountID,
		Ticker:         ticker,
		Quantity:       quantity,
		Price:          price,
		TradeType:      tradeType,
		SettlementDate: settlementDate,
	}, nil
}

// ValidatePipeTradeRow validates a single Format 2 row: report date in
// YYYYMMDD, signed shares and market value, non-empty source system.
func ValidatePipeTradeRow(row map[string]string) (*PipeTradeRow, error) {
	reportDate, err := parseCompactDate("REPORT_DATE", row["REPORT_DATE"])
	if err != nil {
		return nil, err
	}

	accountID, err := requireString("ACCOUNT_ID", row["ACCOUNT_ID"], maxAccountIDLen)
	if err != nil {
		return nil, err
	}

	ticker, err := requireString("SECURITY_TICKER", row["SECURITY_TICKER"], maxTickerLen)
	if err != nil {
		return nil, err
	}

	shares, err := parseInt("SHARES", row["SHARES"])
	if err != nil {
		return nil, err
	}

	marketValue, err := parseDecimal("MARKET_VALUE", row["MARKET_VALUE"])
	if err != nil {
		return nil, err
	}

	sourceSystem := strings.TrimSpace(row["SOURCE_SYSTEM"])
	if sourceSystem == "" {
		return nil, fmt.Errorf("SOURCE_SYSTEM is required")
	}

	return &PipeTradeRow{
		ReportDate:   reportDate,
		AccountID:    accountID,
		Ticker:       ticker,
		Shares:       shares,
		MarketValue:  marketValue,
		SourceSystem: sourceSystem,
	}, nil
}

// ValidateBankPosition validates one snapshot entry. The custodian reference
// is optional; custodian identity derivation is handled separately.
func ValidateBankPosition(entry BankPositionEntry) (*ValidatedBankPosition, error) {
	accountID, err := requireString("account_id", entry.AccountID, maxAccountIDLen)
	if err != nil {
		return nil, err
	}

	ticker, err := requireString("ticker", entry.Ticker, maxTickerLen)
	if err != nil {
		return nil, err
	}

	marketValue, err := parseDecimal("market_value", entry.MarketValue.Value)
	if err != nil {
		return nil, err
	}

	return &ValidatedBankPosition{
		AccountID:    accountID,
		Ticker:       ticker,
		Shares:       entry.Shares,
		MarketValue:  marketValue,
		CustodianRef: strings.TrimSpace(entry.CustodianRef),
	}, nil
}

// ValidateReportDate checks a snapshot document's report date (YYYYMMDD) and
// returns it in canonical form. A bad report date invalidates the whole
// document, not a single entry.
func ValidateReportDate(value string) (string, error) {
	if len(value) != 8 || !isDigits(value) {
		return "", fmt.Errorf("invalid report_date format: %q", value)
	}
	return parseCompactDate("report_date", value)
}

// ExtractCustodianName derives the custodian identity from a custodian
// reference: the token after the first underscore names the custodian
// (CUST_A_12345 -> CUSTODIAN_A). References with fewer than two tokens, or
// empty references, yield no custodian.
func ExtractCustodianName(custodianRef string) string {
	if custodianRef == "" {
		return ""
	}
	parts := strings.Split(custodianRef, "_")
	if len(parts) >= 2 {
		return "CUSTODIAN_" + parts[1]
	}
	return ""
}

func parseISODate(field, value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	t, err := time.Parse(ledger.DateLayout, strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("invalid %s %q: expected YYYY-MM-DD", field, value)
	}
	return t.Format(ledger.DateLayout), nil
}

func parseCompactDate(field, value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	t, err := time.Parse("20060102", strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("invalid %s %q: expected YYYYMMDD", field, value)
	}
	return t.Format(ledger.DateLayout), nil
}

func requireString(field, value string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	if len(trimmed) > maxLen {
		return "", fmt.Errorf("%s exceeds %d characters", field, maxLen)
	}
	return trimmed, nil
}

func parseInt(field, value string) (int64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: expected an integer", field, value)
	}
	return n, nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Decimal{}, fmt.Errorf("%s is required", field)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: expected a decimal number", field, value)
	}
	return d, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
