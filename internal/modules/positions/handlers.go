package positions

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// Handler handles position HTTP requests
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new positions handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "positions").Logger(),
	}
}

// HandleGetPositions returns holdings with cost basis for an account on a
// date. Requires "account" and "date" query parameters.
func (h *Handler) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account")
	date := r.URL.Query().Get("date")

	if accountID == "" || date == "" {
		h.writeError(w, http.StatusBadRequest, "Both 'account' and 'date' parameters are required")
		return
	}

	if err := ValidateQueryDate(date); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Positions(accountID, date)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.NoData {
		h.writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"account_id":         accountID,
			"date":               date,
			"positions":          []interface{}{},
			"total_market_value": 0.0,
			"note":               "No trade or position data found",
		})
		return
	}

	holdings := make([]map[string]interface{}, 0, len(result.Holdings))
	for _, holding := range result.Holdings {
		entry := map[string]interface{}{
			"ticker":     holding.Ticker,
			"shares":     holding.Shares,
			"cost_basis": holding.CostBasis.InexactFloat64(),
			"total_cost": holding.TotalCost.InexactFloat64(),
		}
		if holding.MarketValue != nil {
			entry["market_value"] = holding.MarketValue.InexactFloat64()
		} else {
			entry["market_value"] = nil
			entry["note"] = "Calculated from trades; no current market value"
		}
		if holding.UnrealizedPnL != nil {
			entry["unrealized_pnl"] = holding.UnrealizedPnL.InexactFloat64()
		}
		if holding.CustodianRef != nil {
			entry["custodian_ref"] = *holding.CustodianRef
		}
		holdings = append(holdings, entry)
	}

	response := map[string]interface{}{
		"account_id": result.AccountID,
		"date":       result.Date,
		"positions":  holdings,
	}
	if result.FromTrades {
		response["note"] = "Calculated from trade history; no position file data available"
	} else {
		response["total_market_value"] = result.TotalMarketValue.InexactFloat64()
	}

	h.log.Info().
		Str("account_id", accountID).
		Str("date", date).
		Int("positions", len(holdings)).
		Bool("from_trades", result.FromTrades).
		Msg("Positions retrieved")

	h.writeJSON(w, http.StatusOK, response)
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
