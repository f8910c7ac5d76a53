package ledger

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// Handler handles ledger HTTP requests
type Handler struct {
	accountRepo *AccountRepository
	log         zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(accountRepo *AccountRepository, log zerolog.Logger) *Handler {
	return &Handler{
		accountRepo: accountRepo,
		log:         log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleGetAccounts returns all known accounts with their custodian names
func (h *Handler) HandleGetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountRepo.GetAll()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if accounts == nil {
		accounts = []Account{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
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
