package compliance

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clearledger/reconciler/internal/modules/ledger"
	"github.com/clearledger/reconciler/pkg/formulas"
)

// aggregate is the per-(account, ticker) working state for one derivation.
type aggregate struct {
	ticker       string
	shares       int64
	value        decimal.Decimal
	custodianRef *string
}

// Service flags portfolio-concentration violations. The check runs twice,
// independently, over trade-derived and snapshot-derived holdings.
type Service struct {
	trades       *ledger.TradeRepository
	positions    *ledger.PositionRepository
	threshold    decimal.Decimal // as a fraction, e.g. 0.20
	thresholdPct float64
	log          zerolog.Logger
}

// NewService creates a new compliance service. thresholdPct is the maximum
// allowed concentration in percent (20 flags anything above 20%).
func NewService(
	trades *ledger.TradeRepository,
	positions *ledger.PositionRepository,
	thresholdPct float64,
	log zerolog.Logger,
) *Service {
	return &Service{
		trades:       trades,
		positions:    positions,
		threshold:    decimal.NewFromFloat(thresholdPct).Div(decimal.NewFromInt(100)),
		thresholdPct: thresholdPct,
		log:          log.With().Str("component", "compliance").Logger(),
	}
}

// Check computes concentration violations for one date from both sources.
func (s *Service) Check(date string) (*CheckResult, error) {
	fromTrades, err := s.checkFromTrades(date)
	if err != nil {
		return nil, err
	}

	fromBank, err := s.checkFromBank(date)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("date", date).
		Int("violations_from_trades", len(fromTrades.Violations)).
		Int("violations_from_bank", len(fromBank.Violations)).
		Msg("Compliance check completed")

	return &CheckResult{Date: date, FromTrades: *fromTrades, FromBank: *fromBank}, nil
}

// checkFromTrades aggregates market value per (account, ticker) from all
// trades dated on or before the query date: signed price x quantity when a
// price is present, otherwise the raw signed market value.
func (s *Service) checkFromTrades(date string) (*SourceResult, error) {
	trades, err := s.trades.GetAllUpTo(date)
	if err != nil {
		return nil, err
	}

	byAccount := make(map[string]map[string]*aggregate)
	for _, trade := range trades {
		tickers, ok := byAccount[trade.AccountID]
		if !ok {
			tickers = make(map[string]*aggregate)
			byAccount[trade.AccountID] = tickers
		}
		agg, ok := tickers[trade.Ticker]
		if !ok {
			agg = &aggregate{ticker: trade.Ticker}
			tickers[trade.Ticker] = agg
		}

		agg.shares += trade.Quantity
		switch {
		case trade.Price != nil:
			agg.value = agg.value.Add(trade.Price.Mul(decimal.NewFromInt(trade.Quantity)))
		case trade.MarketValue != nil:
			agg.value = agg.value.Add(*trade.MarketValue)
		}
	}

	return s.evaluate(byAccount), nil
}

// checkFromBank takes snapshot market values directly for the exact date.
func (s *Service) checkFromBank(date string) (*SourceResult, error) {
	positions, err := s.positions.GetForDate(date)
	if err != nil {
		return nil, err
	}

	byAccount := make(map[string]map[string]*aggregate)
	for _, pos := range positions {
		tickers, ok := byAccount[pos.AccountID]
		if !ok {
			tickers = make(map[string]*aggregate)
			byAccount[pos.AccountID] = tickers
		}
		tickers[pos.Ticker] = &aggregate{
			ticker:       pos.Ticker,
			shares:       pos.Shares,
			value:        pos.MarketValue,
			custodianRef: pos.CustodianRef,
		}
	}

	return s.evaluate(byAccount), nil
}

// evaluate applies the shared concentration rules: zero-share aggregates are
// dropped, the account denominator sums strictly positive values only, and
// non-positive positions are never candidates for violation.
func (s *Service) evaluate(byAccount map[string]map[string]*aggregate) *SourceResult {
	accountIDs := make([]string, 0, len(byAccount))
	for accountID := range byAccount {
		accountIDs = append(accountIDs, accountID)
	}
	sort.Strings(accountIDs)

	result := &SourceResult{Violations: []Violation{}}
	var concentrations []float64

	for _, accountID := range accountIDs {
		var aggs []*aggregate
		for _, agg := range byAccount[accountID] {
			if agg.shares == 0 {
				continue
			}
			aggs = append(aggs, agg)
		}
		sort.Slice(aggs, func(i, j int) bool { return aggs[i].ticker < aggs[j].ticker })

		// Short positions are excluded from the denominator entirely.
		totalValue := decimal.Zero
		for _, agg := range aggs {
			if agg.value.IsPositive() {
				totalValue = totalValue.Add(agg.value)
			}
		}

		for _, agg := range aggs {
			if !agg.value.IsPositive() {
				continue
			}

			concentration := decimal.Zero
			if totalValue.IsPositive() {
				concentration = agg.value.Div(totalValue)
			}

			concentrationPct := concentration.Mul(decimal.NewFromInt(100))
			concentrations = append(concentrations, concentrationPct.InexactFloat64())
			result.Summary.PositionsEvaluated++

			if concentration.GreaterThan(s.threshold) {
				excessPct := concentration.Sub(s.threshold).Mul(decimal.NewFromInt(100))
				result.Violations = append(result.Violations, Violation{
					AccountID:         accountID,
					Ticker:            agg.ticker,
					Shares:            agg.shares,
					MarketValue:       agg.value.InexactFloat64(),
					AccountTotalValue: totalValue.InexactFloat64(),
					ConcentrationPct:  concentrationPct.InexactFloat64(),
					ThresholdPct:      s.thresholdPct,
					ExcessPct:         excessPct.InexactFloat64(),
					CustodianRef:      agg.custodianRef,
				})
			}
		}
	}

	result.Summary.MeanConcentrationPct = formulas.Mean(concentrations)
	result.Summary.MaxConcentrationPct = formulas.Max(concentrations)
	result.Summary.StdDevConcentrationPct = formulas.StdDev(concentrations)

	return result
}
