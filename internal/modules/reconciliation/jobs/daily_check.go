package jobs

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearledger/reconciler/internal/modules/ledger"
	"github.com/clearledger/reconciler/internal/modules/reconciliation"
)

// DailyCheckJob runs the reconciliation differ for the current date and logs
// the outcome, so unresolved breaks surface without anyone hitting the API.
type DailyCheckJob struct {
	service *reconciliation.Service
	log     zerolog.Logger
}

// NewDailyCheckJob creates a new daily reconciliation check job
func NewDailyCheckJob(service *reconciliation.Service, log zerolog.Logger) *DailyCheckJob {
	return &DailyCheckJob{
		service: service,
		log:     log.With().Str("job", "daily_recon_check").Logger(),
	}
}

// Name returns the job name for scheduler logging
func (j *DailyCheckJob) Name() string {
	return "daily_recon_check"
}

// Run executes one reconciliation pass for today's date
func (j *DailyCheckJob) Run() error {
	date := time.Now().Format(ledger.DateLayout)

	result, err := j.service.Reconcile(date)
	if err != nil {
		return fmt.Errorf("daily reconciliation check failed: %w", err)
	}

	if len(result.Discrepancies) > 0 {
		j.log.Warn().
			Str("date", date).
			Int("discrepancies", len(result.Discrepancies)).
			Msg("Reconciliation discrepancies found")
	} else {
		j.log.Info().Str("date", date).Msg("Ledger reconciles cleanly")
	}

	return nil
}
