package compliance

// Violation is one portfolio-concentration breach: a single ticker holds
// more than the threshold share of an account's total positive market value.
type Violation struct {
	AccountID         string  `json:"account_id"`
	Ticker            string  `json:"ticker"`
	Shares            int64   `json:"shares"`
	MarketValue       float64 `json:"market_value"`
	AccountTotalValue float64 `json:"account_total_value"`
	ConcentrationPct  float64 `json:"concentration_pct"`
	ThresholdPct      float64 `json:"threshold_pct"`
	ExcessPct         float64 `json:"excess_pct"`
	CustodianRef      *string `json:"custodian_ref,omitempty"`
}

// Summary describes the concentration distribution across every position
// that was evaluated for one source, not just the violating ones.
type Summary struct {
	PositionsEvaluated     int     `json:"positions_evaluated"`
	MeanConcentrationPct   float64 `json:"mean_concentration_pct"`
	MaxConcentrationPct    float64 `json:"max_concentration_pct"`
	StdDevConcentrationPct float64 `json:"stddev_concentration_pct"`
}

// SourceResult is the outcome of one derivation (trades or bank snapshot).
type SourceResult struct {
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
}

// CheckResult carries both independent derivations for one date.
type CheckResult struct {
	Date       string       `json:"date"`
	FromTrades SourceResult `json:"from_trades"`
	FromBank   SourceResult `json:"from_bank"`
}
