package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/tafahom/backend/internal/billing"
)

// Credits handles GET /api/v1/credits: the wallet snapshot, provisioning
// a free-plan subscription on first contact.
func Credits(wallet *billing.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserID(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		wal, err := wallet.GetOrProvision(r.Context(), userID)
		if err != nil {
			log.Error("wallet fetch failed", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"total_credits":     wal.TotalCredits(),
			"remaining_credits": wal.Remaining(),
			"used_credits":      wal.CreditsUsed,
			"bonus_credits":     wal.BonusCredits,
			"last_reset":        wal.LastReset.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
}

// CreditHistory handles GET /api/v1/credits/history.
func CreditHistory(wallet *billing.Service, log *slog.Logger) http.HandlerFunc {
	type item struct {
		Kind      string `json:"kind"`
		Amount    int    `json:"amount"`
		Reason    string `json:"reason"`
		CreatedAt string `json:"created_at"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserID(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		txs, err := wallet.History(r.Context(), userID, 50)
		if err != nil {
			log.Error("credit history query failed", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		items := make([]item, 0, len(txs))
		for _, tx := range txs {
			items = append(items, item{
				Kind:      tx.Kind,
				Amount:    tx.Amount,
				Reason:    tx.Reason,
				CreatedAt: tx.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": items})
	}
}
