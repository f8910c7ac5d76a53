package ingestion

// Report summarizes data quality for one ingestion call. It is returned to
// the caller and never persisted.
type Report struct {
	IngestionID        string   `json:"ingestion_id"`
	FileName           string   `json:"file_name"`
	FileFormat         string   `json:"file_format"`
	RecordsProcessed   int      `json:"records_processed"`
	RecordsValid       int      `json:"records_valid"`
	RecordsFailed      int      `json:"records_failed"`
	Errors             []string `json:"errors"`
	Warnings           []string `json:"warnings"`
	NewAccountsCreated int      `json:"new_accounts_created"`
	CustodiansDetected []string `json:"custodians_detected"`
}

// SuccessRate returns the percentage of processed records that validated,
// 0 when nothing was processed.
func (r *Report) SuccessRate() float64 {
	if r.RecordsProcessed == 0 {
		return 0
	}
	return float64(r.RecordsValid) / float64(r.RecordsProcessed) * 100
}

// HasErrors reports whether any record failed or a file-level error occurred.
func (r *Report) HasErrors() bool {
	return r.RecordsFailed > 0 || len(r.Errors) > 0
}
