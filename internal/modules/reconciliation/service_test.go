package reconciliation

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
	service   *Service
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

	accounts := ledger.NewAccountRepository(db.Conn(), zerolog.Nop())
	trades := ledger.NewTradeRepository(db.Conn(), zerolog.Nop())
	positions := ledger.NewPositionRepository(db.Conn(), zerolog.Nop())

	return testEnv{
		db:        db,
		service:   NewService(trades, positions, zerolog.Nop()),
		accounts:  accounts,
		trades:    trades,
		positions: positions,
	}
}

func (e testEnv) ensureAccount(t *testing.T, account string) {
	t.Helper()
	_, err := e.accounts.Ensure(e.db.Conn(), account, nil)
	require.NoError(t, err)
}

func (e testEnv) insertTrade(t *testing.T, date, account, ticker string, qty int64) {
	t.Helper()
	e.ensureAccount(t, account)
	price := decimal.NewFromInt(10)
	require.NoError(t, e.trades.Insert(e.db.Conn(), ledger.Trade{
		TradeDate:  date,
		AccountID:  account,
		Ticker:     ticker,
		Quantity:   qty,
		Price:      &price,
		FileFormat: ledger.FormatCSVTrades,
		SourceFile: "test.csv",
	}))
}

func (e testEnv) insertPosition(t *testing.T, date, account, ticker string, shares int64) {
	t.Helper()
	e.ensureAccount(t, account)
	require.NoError(t, e.positions.Insert(e.db.Conn(), ledger.Position{
		ReportDate:  date,
		AccountID:   account,
		Ticker:      ticker,
		Shares:      shares,
		MarketValue: decimal.NewFromInt(shares * 10),
		SourceFile:  "test.yaml",
	}))
}

func TestReconcileQuantityMismatch(t *testing.T) {
	env := newTestEnv(t)

	env.insertTrade(t, "2026-01-10", "ACC001", "AAPL", 100)
	env.insertPosition(t, "2026-01-15", "ACC001", "AAPL", 75)

	result, err := env.service.Reconcile("2026-01-15")
	require.NoError(t, err)

	require.Len(t, result.Discrepancies, 1)
	d := result.Discrepancies[0]
	assert.Equal(t, "ACC001", d.AccountID)
	assert.Equal(t, "AAPL", d.Ticker)
	assert.Equal(t, int64(100), d.ExpectedShares)
	assert.Equal(t, int64(75), d.ActualShares)
	assert.Equal(t, int64(-25), d.Difference)
	assert.Equal(t, StatusQuantityMismatch, d.Status)
}

func TestReconcileMissingInBank(t *testing.T) {
	env := newTestEnv(t)

	env.insertTrade(t, "2026-01-10", "ACC001", "MSFT", 50)

	result, err := env.service.Reconcile("2026-01-15")
	require.NoError(t, err)

	require.Len(t, result.Discrepancies, 1)
	d := result.Discrepancies[0]
	assert.Equal(t, int64(50), d.ExpectedShares)
	assert.Equal(t, int64(0), d.ActualShares)
	assert.Equal(t, int64(-50), d.Difference)
	assert.Equal(t, StatusMissingInBank, d.Status)
}

func TestReconcileMissingInTrades(t *testing.T) {
	env := newTestEnv(t)

	env.insertPosition(t, "2026-01-15", "ACC002", "VTI", 10)

	result, err := env.service.Reconcile("2026-01-15")
	require.NoError(t, err)

	require.Len(t, result.Discrepancies, 1)
	d := result.Discrepancies[0]
	assert.Equal(t, int64(0), d.ExpectedShares)
	assert.Equal(t, int64(10), d.ActualShares)
	assert.Equal(t, int64(10), d.Difference)
	assert.Equal(t, StatusMissingInTrades, d.Status)
}

func TestReconcileMatchingPositionsOmitted(t *testing.T) {
	env := newTestEnv(t)

	env.insertTrade(t, "2026-01-10", "ACC001", "NVDA", 40)
	env.insertPosition(t, "2026-01-15", "ACC001", "NVDA", 40)

	result, err := env.service.Reconcile("2026-01-15")
	require.NoError(t, err)

	assert.Empty(t, result.Discrepancies)
	assert.Equal(t, 1, result.TotalPositionsInBank)
	assert.Equal(t, 1, result.TotalPositionsFromTrades)
}

func TestReconcileNetsTradesAcrossHistory(t *testing.T) {
	env := newTestEnv(t)

	// 100 bought, 25 sold before the snapshot date, 10 bought after it.
	env.insertTrade(t, "2026-01-08", "ACC001", "AAPL", 100)
	env.insertTrade(t, "2026-01-12", "ACC001", "AAPL", -25)
	env.insertTrade(t, "2026-02-01", "ACC001", "AAPL", 10)
	env.insertPosition(t, "2026-01-15", "ACC001", "AAPL", 75)

	result, err := env.service.Reconcile("2026-01-15")
	require.NoError(t, err)

	assert.Empty(t, result.Discrepancies)
}

func TestReconcileSortedOutput(t *testing.T) {
	env := newTestEnv(t)

	env.insertTrade(t, "2026-01-10", "ACC002", "AAPL", 10)
	env.insertTrade(t, "2026-01-10", "ACC001", "MSFT", 20)
	env.insertTrade(t, "2026-01-10", "ACC001", "AAPL", 30)

	result, err := env.service.Reconcile("2026-01-15")
	require.NoError(t, err)

	require.Len(t, result.Discrepancies, 3)
	assert.Equal(t, "ACC001", result.Discrepancies[0].AccountID)
	assert.Equal(t, "AAPL", result.Discrepancies[0].Ticker)
	assert.Equal(t, "ACC001", result.Discrepancies[1].AccountID)
	assert.Equal(t, "MSFT", result.Discrepancies[1].Ticker)
	assert.Equal(t, "ACC002", result.Discrepancies[2].AccountID)
}

func TestReconcileEmptyLedger(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.service.Reconcile("2026-01-15")
	require.NoError(t, err)

	assert.Empty(t, result.Discrepancies)
	assert.Equal(t, 0, result.TotalPositionsInBank)
	assert.Equal(t, 0, result.TotalPositionsFromTrades)
}
