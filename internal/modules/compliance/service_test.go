package compliance

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearledger/reconciler/internal/database"
	"github.com/clearledger/reconciler/internal/modules/ledger"
)

type testEnv struct {
	db        *database.DB
	accounts  *ledger.AccountRepository
	trades    *ledger.TradeRepository
	positions *ledger.PositionRepository
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, ledger.InitSchema(db.Conn()))
	t.Cleanup(func() { db.Close() })

	return testEnv{
		db:        db,
		accounts:  ledger.NewAccountRepository(db.Conn(), zerolog.Nop()),
		trades:    ledger.NewTradeRepository(db.Conn(), zerolog.Nop()),
		positions: ledger.NewPositionRepository(db.Conn(), zerolog.Nop()),
	}
}

func (e testEnv) ensureAccount(t *testing.T, account string) {
	t.Helper()
	_, err := e.accounts.Ensure(e.db.Conn(), account, nil)
	require.NoError(t, err)
}

func (e testEnv) newService(thresholdPct float64) *Service {
	return NewService(e.trades, e.positions, thresholdPct, zerolog.Nop())
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func (e testEnv) insertTrade(t *testing.T, date, account, ticker string, qty int64, price string) {
	t.Helper()
	e.ensureAccount(t, account)
	p := mustDec(t, price)
	require.NoError(t, e.trades.Insert(e.db.Conn(), ledger.Trade{
		TradeDate:  date,
		AccountID:  account,
		Ticker:     ticker,
		Quantity:   qty,
		Price:      &p,
		FileFormat: ledger.FormatCSVTrades,
		SourceFile: "test.csv",
	}))
}

func (e testEnv) insertPosition(t *testing.T, date, account, ticker string, shares int64, mv string, ref *string) {
	t.Helper()
	e.ensureAccount(t, account)
	require.NoError(t, e.positions.Insert(e.db.Conn(), ledger.Position{
		ReportDate:   date,
		AccountID:    account,
		Ticker:       ticker,
		Shares:       shares,
		MarketValue:  mustDec(t, mv),
		CustodianRef: ref,
		SourceFile:   "test.yaml",
	}))
}

func TestCheckFromBankViolations(t *testing.T) {
	env := newTestEnv(t)
	ref := "CUST_A_1"

	// 50% / 30% / 20% of a 100-value account.
	env.insertPosition(t, "2026-01-15", "ACC001", "AAPL", 10, "50", &ref)
	env.insertPosition(t, "2026-01-15", "ACC001", "MSFT", 10, "30", nil)
	env.insertPosition(t, "2026-01-15", "ACC001", "NVDA", 10, "20", nil)

	result, err := env.newService(20).Check("2026-01-15")
	require.NoError(t, err)

	// Exactly at threshold is compliant, only strictly above is flagged.
	require.Len(t, result.FromBank.Violations, 2)

	v := result.FromBank.Violations[0]
	assert.Equal(t, "AAPL", v.Ticker)
	assert.InDelta(t, 50.0, v.ConcentrationPct, 0.001)
	assert.InDelta(t, 100.0, v.AccountTotalValue, 0.001)
	assert.InDelta(t, 30.0, v.ExcessPct, 0.001)
	assert.Equal(t, 20.0, v.ThresholdPct)
	require.NotNil(t, v.CustodianRef)
	assert.Equal(t, "CUST_A_1", *v.CustodianRef)

	assert.Equal(t, "MSFT", result.FromBank.Violations[1].Ticker)
	assert.InDelta(t, 10.0, result.FromBank.Violations[1].ExcessPct, 0.001)

	assert.Equal(t, 3, result.FromBank.Summary.PositionsEvaluated)
	assert.InDelta(t, 50.0, result.FromBank.Summary.MaxConcentrationPct, 0.001)
	assert.InDelta(t, 100.0/3, result.FromBank.Summary.MeanConcentrationPct, 0.001)
}

func TestCheckShortPositionsExcluded(t *testing.T) {
	env := newTestEnv(t)

	env.insertPosition(t, "2026-01-15", "ACC001", "GOOG", 100, "40424", nil)
	env.insertPosition(t, "2026-01-15", "ACC001", "TSLA", -100, "-40424", nil)

	result, err := env.newService(20).Check("2026-01-15")
	require.NoError(t, err)

	// The short neither dilutes the denominator nor gets flagged itself.
	require.Len(t, result.FromBank.Violations, 1)
	v := result.FromBank.Violations[0]
	assert.Equal(t, "GOOG", v.Ticker)
	assert.InDelta(t, 100.0, v.ConcentrationPct, 0.001)
	assert.InDelta(t, 40424.0, v.AccountTotalValue, 0.001)

	// Only the long leg is evaluated at all.
	assert.Equal(t, 1, result.FromBank.Summary.PositionsEvaluated)
}

func TestCheckFromTradesAggregation(t *testing.T) {
	env := newTestEnv(t)

	// AAPL: 100 bought at 10, 50 sold at 10 = net value 500 over 50 shares.
	env.insertTrade(t, "2026-01-10", "ACC001", "AAPL", 100, "10")
	env.insertTrade(t, "2026-01-11", "ACC001", "AAPL", -50, "10")
	env.insertTrade(t, "2026-01-12", "ACC001", "MSFT", 100, "1")

	result, err := env.newService(20).Check("2026-01-15")
	require.NoError(t, err)

	require.Len(t, result.FromTrades.Violations, 1)
	v := result.FromTrades.Violations[0]
	assert.Equal(t, "AAPL", v.Ticker)
	assert.Equal(t, int64(50), v.Shares)
	assert.InDelta(t, 500.0/600.0*100, v.ConcentrationPct, 0.001)
	assert.Nil(t, v.CustodianRef)
}

func TestCheckClosedPositionsSkipped(t *testing.T) {
	env := newTestEnv(t)

	env.insertTrade(t, "2026-01-10", "ACC001", "AAPL", 100, "10")
	env.insertTrade(t, "2026-01-11", "ACC001", "AAPL", -100, "12")
	env.insertTrade(t, "2026-01-12", "ACC001", "MSFT", 10, "5")

	result, err := env.newService(20).Check("2026-01-15")
	require.NoError(t, err)

	// With AAPL closed out, MSFT is the entire account.
	require.Len(t, result.FromTrades.Violations, 1)
	assert.Equal(t, "MSFT", result.FromTrades.Violations[0].Ticker)
	assert.InDelta(t, 100.0, result.FromTrades.Violations[0].ConcentrationPct, 0.001)
	assert.Equal(t, 1, result.FromTrades.Summary.PositionsEvaluated)
}

func TestCheckAccountsEvaluatedIndependently(t *testing.T) {
	env := newTestEnv(t)

	env.insertPosition(t, "2026-01-15", "ACC002", "VTI", 10, "100", nil)
	env.insertPosition(t, "2026-01-15", "ACC001", "AAPL", 10, "60", nil)
	env.insertPosition(t, "2026-01-15", "ACC001", "MSFT", 10, "40", nil)

	result, err := env.newService(20).Check("2026-01-15")
	require.NoError(t, err)

	// Violations come back sorted by account then ticker.
	require.Len(t, result.FromBank.Violations, 3)
	assert.Equal(t, "ACC001", result.FromBank.Violations[0].AccountID)
	assert.Equal(t, "AAPL", result.FromBank.Violations[0].Ticker)
	assert.Equal(t, "MSFT", result.FromBank.Violations[1].Ticker)
	assert.Equal(t, "ACC002", result.FromBank.Violations[2].AccountID)

	// A single-position account is always at 100%.
	assert.InDelta(t, 100.0, result.FromBank.Violations[2].ConcentrationPct, 0.001)
}

func TestCheckEmptyLedger(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.newService(20).Check("2026-01-15")
	require.NoError(t, err)

	assert.Empty(t, result.FromTrades.Violations)
	assert.Empty(t, result.FromBank.Violations)
	assert.Equal(t, 0, result.FromTrades.Summary.PositionsEvaluated)
	assert.Equal(t, 0.0, result.FromTrades.Summary.MeanConcentrationPct)
	assert.Equal(t, 0.0, result.FromTrades.Summary.StdDevConcentrationPct)
}

func TestCheckConcentrationBounded(t *testing.T) {
	env := newTestEnv(t)

	env.insertPosition(t, "2026-01-15", "ACC001", "AAPL", 10, "75", nil)
	env.insertPosition(t, "2026-01-15", "ACC001", "TSLA", -5, "-200", nil)

	result, err := env.newService(20).Check("2026-01-15")
	require.NoError(t, err)

	for _, v := range result.FromBank.Violations {
		assert.LessOrEqual(t, v.ConcentrationPct, 100.0)
		assert.GreaterOrEqual(t, v.ConcentrationPct, 0.0)
	}
	assert.LessOrEqual(t, result.FromBank.Summary.MaxConcentrationPct, 100.0)
}
