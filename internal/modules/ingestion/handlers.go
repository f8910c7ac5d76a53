package ingestion

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clearledger/reconciler/internal/modules/ledger"
)

// maxUploadBytes caps ingestion uploads at 32 MiB.
const maxUploadBytes = 32 << 20

// Handler handles file upload ingestion requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new ingestion handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "ingestion").Logger(),
	}
}

// HandleIngest accepts a multipart upload ("file", optional "file_format")
// and runs it through the normalization pipeline. Responds 200 on a clean
// ingest and 207 when the report carries errors.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "No file provided in request")
		return
	}
	defer file.Close()

	if fileHeader.Filename == "" {
		h.writeError(w, http.StatusBadRequest, "Empty filename")
		return
	}

	fileFormat := r.FormValue("file_format")
	if fileFormat == "" {
		inferred, ok := inferFormat(fileHeader.Filename)
		if !ok {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "Could not infer file_format from filename. Please specify explicitly.",
				"hint":  "Use file_format form field: CSV_FORMAT1, PIPE_FORMAT2, or YAML_POSITIONS",
			})
			return
		}
		fileFormat = inferred
	}

	report := h.service.Ingest(fileHeader.Filename, fileFormat, file)

	status := "success"
	httpStatus := http.StatusOK
	if report.HasErrors() {
		status = "partial_success"
		httpStatus = http.StatusMultiStatus
	}

	h.writeJSON(w, httpStatus, map[string]interface{}{
		"ingestion_id":         report.IngestionID,
		"file_name":            report.FileName,
		"file_format":          report.FileFormat,
		"records_processed":    report.RecordsProcessed,
		"records_valid":        report.RecordsValid,
		"records_failed":       report.RecordsFailed,
		"success_rate":         fmt.Sprintf("%.2f%%", report.SuccessRate()),
		"new_accounts_created": report.NewAccountsCreated,
		"custodians_detected":  report.CustodiansDetected,
		"errors":               report.Errors,
		"warnings":             report.Warnings,
		"status":               status,
	})
}

// inferFormat guesses the declared format from the uploaded filename.
func inferFormat(filename string) (string, bool) {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".csv") && strings.Contains(name, "format1"):
		return ledger.FormatCSVTrades, true
	case strings.HasSuffix(name, ".txt"),
		strings.HasSuffix(name, ".csv") && strings.Contains(name, "format2"):
		return ledger.FormatPipeTrades, true
	case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
		return ledger.FormatYAMLBank, true
	default:
		return "", false
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
