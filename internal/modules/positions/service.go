package positions

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clearledger/reconciler/internal/modules/ledger"
)

// Holding is one derived per-ticker holding with cost basis. MarketValue and
// UnrealizedPnL are nil on the trade-derived fallback path, where no external
// price source exists.
type Holding struct {
	Ticker        string
	Shares        int64
	MarketValue   *decimal.Decimal
	CostBasis     decimal.Decimal
	TotalCost     decimal.Decimal
	UnrealizedPnL *decimal.Decimal
	CustodianRef  *string
}

// Result is the outcome of a positions query. FromTrades marks the fallback
// path; NoData marks an account with neither snapshots nor trades, which is
// distinct from an account holding zero positions.
type Result struct {
	AccountID        string
	Date             string
	Holdings         []Holding
	TotalMarketValue decimal.Decimal
	FromTrades       bool
	NoData           bool
}

// Service derives current holdings and average cost basis from the ledger
type Service struct {
	trades    *ledger.TradeRepository
	positions *ledger.PositionRepository
	log       zerolog.Logger
}

// NewService creates a new positions service
func NewService(trades *ledger.TradeRepository, positions *ledger.PositionRepository, log zerolog.Logger) *Service {
	return &Service{
		trades:    trades,
		positions: positions,
		log:       log.With().Str("component", "positions").Logger(),
	}
}

// Positions returns holdings for an account as of a date. The custodian
// snapshot is the primary source; when no snapshot exists for that date,
// holdings are derived purely from trade history.
func (s *Service) Positions(accountID, date string) (*Result, error) {
	snapshot, err := s.positions.GetForAccountAndDate(accountID, date)
	if err != nil {
		return nil, err
	}

	if len(snapshot) == 0 {
		s.log.Warn().
			Str("account_id", accountID).
			Str("date", date).
			Msg("No snapshot data, deriving positions from trades")
		return s.fromTrades(accountID, date)
	}

	result := &Result{AccountID: accountID, Date: date}

	for _, pos := range snapshot {
		trades, err := s.trades.GetForTickerUpTo(accountID, pos.Ticker, date)
		if err != nil {
			return nil, err
		}

		totalCost, totalShares := accumulateCost(trades)

		costBasis := decimal.Zero
		if totalShares != 0 {
			costBasis = totalCost.Div(decimal.NewFromInt(totalShares))
		}

		marketValue := pos.MarketValue
		pnl := pos.MarketValue.Sub(totalCost)

		result.Holdings = append(result.Holdings, Holding{
			Ticker:        pos.Ticker,
			Shares:        pos.Shares,
			MarketValue:   &marketValue,
			CostBasis:     costBasis,
			TotalCost:     totalCost,
			UnrealizedPnL: &pnl,
			CustodianRef:  pos.CustodianRef,
		})
		result.TotalMarketValue = result.TotalMarketValue.Add(pos.MarketValue)
	}

	return result, nil
}

// fromTrades derives all holdings from trade history alone. Tickers whose
// net share count is exactly zero (fully closed positions) are omitted.
func (s *Service) fromTrades(accountID, date string) (*Result, error) {
	trades, err := s.trades.GetForAccountUpTo(accountID, date)
	if err != nil {
		return nil, err
	}

	if len(trades) == 0 {
		return &Result{AccountID: accountID, Date: date, FromTrades: true, NoData: true}, nil
	}

	byTicker := make(map[string][]ledger.Trade)
	for _, trade := range trades {
		byTicker[trade.Ticker] = append(byTicker[trade.Ticker], trade)
	}

	tickers := make([]string, 0, len(byTicker))
	for ticker := range byTicker {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	result := &Result{AccountID: accountID, Date: date, FromTrades: true}

	for _, ticker := range tickers {
		totalCost, totalShares := accumulateCost(byTicker[ticker])
		if totalShares == 0 {
			continue
		}

		costBasis := totalCost.Div(decimal.NewFromInt(totalShares))

		result.Holdings = append(result.Holdings, Holding{
			Ticker:    ticker,
			Shares:    totalShares,
			CostBasis: costBasis,
			TotalCost: totalCost,
		})
	}

	return result, nil
}

// accumulateCost sums acquisition cost and signed shares over a trade
// sequence. Cost uses the trade price when present, otherwise the absolute
// market value recorded on the trade.
func accumulateCost(trades []ledger.Trade) (decimal.Decimal, int64) {
	totalCost := decimal.Zero
	var totalShares int64

	for _, trade := range trades {
		switch {
		case trade.Price != nil:
			qty := trade.Quantity
			if qty < 0 {
				qty = -qty
			}
			totalCost = totalCost.Add(trade.Price.Mul(decimal.NewFromInt(qty)))
		case trade.MarketValue != nil:
			totalCost = totalCost.Add(trade.MarketValue.Abs())
		}
		totalShares += trade.Quantity
	}

	return totalCost, totalShares
}

// ValidateQueryDate checks a query date parameter against the canonical
// YYYY-MM-DD layout.
func ValidateQueryDate(date string) error {
	if _, err := time.Parse(ledger.DateLayout, date); err != nil {
		return fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	return nil
}
