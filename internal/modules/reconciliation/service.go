package reconciliation

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/clearledger/reconciler/internal/modules/ledger"
)

// Discrepancy statuses. A key missing from the snapshot is missing_in_bank,
// a key never traded is missing_in_trades, anything else with unequal share
// counts is a quantity mismatch.
const (
	StatusMissingInBank    = "missing_in_bank"
	StatusMissingInTrades  = "missing_in_trades"
	StatusQuantityMismatch = "quantity_mismatch"
)

// Discrepancy is one (account, ticker) disagreement between the
// trade-derived expected share count and the custodian-reported actual.
type Discrepancy struct {
	AccountID      string `json:"account_id"`
	Ticker         string `json:"ticker"`
	ExpectedShares int64  `json:"expected_shares"`
	ActualShares   int64  `json:"actual_shares"`
	Difference     int64  `json:"difference"`
	Status         string `json:"status"`
}

// Result is the outcome of one reconciliation run.
type Result struct {
	Date                     string        `json:"date"`
	TotalPositionsInBank     int           `json:"total_positions_in_bank"`
	TotalPositionsFromTrades int           `json:"total_positions_from_trades"`
	Discrepancies            []Discrepancy `json:"discrepancies"`
}

type key struct {
	accountID string
	ticker    string
}

// Service compares trade-derived share counts against the bank snapshot
type Service struct {
	trades    *ledger.TradeRepository
	positions *ledger.PositionRepository
	log       zerolog.Logger
}

// NewService creates a new reconciliation service
func NewService(trades *ledger.TradeRepository, positions *ledger.PositionRepository, log zerolog.Logger) *Service {
	return &Service{
		trades:    trades,
		positions: positions,
		log:       log.With().Str("component", "reconciliation").Logger(),
	}
}

// Reconcile classifies every disagreement between expected shares (signed
// sum of trade quantities dated on or before the date) and actual shares
// (the snapshot for that exact date). Keys with equal values are not
// reported. Output is sorted by (account, ticker).
func (s *Service) Reconcile(date string) (*Result, error) {
	trades, err := s.trades.GetAllUpTo(date)
	if err != nil {
		return nil, err
	}

	bankPositions, err := s.positions.GetForDate(date)
	if err != nil {
		return nil, err
	}

	expected := make(map[key]int64)
	for _, trade := range trades {
		expected[key{trade.AccountID, trade.Ticker}] += trade.Quantity
	}

	actual := make(map[key]int64)
	for _, pos := range bankPositions {
		actual[key{pos.AccountID, pos.Ticker}] = pos.Shares
	}

	keys := make(map[key]struct{}, len(expected)+len(actual))
	for k := range expected {
		keys[k] = struct{}{}
	}
	for k := range actual {
		keys[k] = struct{}{}
	}

	allKeys := make([]key, 0, len(keys))
	for k := range keys {
		allKeys = append(allKeys, k)
	}
	sort.Slice(allKeys, func(i, j int) bool {
		if allKeys[i].accountID != allKeys[j].accountID {
			return allKeys[i].accountID < allKeys[j].accountID
		}
		return allKeys[i].ticker < allKeys[j].ticker
	})

	result := &Result{
		Date:                     date,
		TotalPositionsInBank:     len(bankPositions),
		TotalPositionsFromTrades: len(expected),
		Discrepancies:            []Discrepancy{},
	}

	for _, k := range allKeys {
		exp := expected[k]
		act := actual[k]
		if exp == act {
			continue
		}

		status := StatusQuantityMismatch
		switch {
		case act == 0:
			status = StatusMissingInBank
		case exp == 0:
			status = StatusMissingInTrades
		}

		result.Discrepancies = append(result.Discrepancies, Discrepancy{
			AccountID:      k.accountID,
			Ticker:         k.ticker,
			ExpectedShares: exp,
			ActualShares:   act,
			Difference:     act - exp,
			Status:         status,
		})
	}

	s.log.Info().
		Str("date", date).
		Int("discrepancies", len(result.Discrepancies)).
		Msg("Reconciliation completed")

	return result, nil
}
