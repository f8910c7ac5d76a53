package compliance

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/clearledger/reconciler/internal/modules/positions"
)

// Handler handles compliance HTTP requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new compliance handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "compliance").Logger(),
	}
}

// HandleConcentration returns concentration violations for a date, computed
// independently from trade history and from the bank snapshot.
func (h *Handler) HandleConcentration(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		h.writeError(w, http.StatusBadRequest, "'date' parameter is required")
		return
	}
	if err := positions.ValidateQueryDate(date); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Check(date)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":          result.Date,
		"threshold_pct": h.service.thresholdPct,
		"from_trades": map[string]interface{}{
			"violations_found": len(result.FromTrades.Violations),
			"violations":       result.FromTrades.Violations,
			"summary":          result.FromTrades.Summary,
			"note":             "Calculated from trade history",
		},
		"from_bank": map[string]interface{}{
			"violations_found": len(result.FromBank.Violations),
			"violations":       result.FromBank.Violations,
			"summary":          result.FromBank.Summary,
			"note":             "From bank position file",
		},
	})
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
