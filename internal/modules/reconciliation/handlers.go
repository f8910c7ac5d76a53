package reconciliation

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/clearledger/reconciler/internal/modules/positions"
)

// Handler handles reconciliation HTTP requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new reconciliation handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "reconciliation").Logger(),
	}
}

// HandleReconcile returns all trade-vs-snapshot discrepancies for a date
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		h.writeError(w, http.StatusBadRequest, "'date' parameter is required")
		return
	}
	if err := positions.ValidateQueryDate(date); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Reconcile(date)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":                        result.Date,
		"total_positions_in_bank":     result.TotalPositionsInBank,
		"total_positions_from_trades": result.TotalPositionsFromTrades,
		"discrepancies_found":         len(result.Discrepancies),
		"discrepancies":               result.Discrepancies,
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
