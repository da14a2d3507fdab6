package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kittipos-w/paygate/internal/apperrors"
	"github.com/kittipos-w/paygate/internal/handlers/accountctx"
	"github.com/kittipos-w/paygate/internal/handlers/render"
	"github.com/kittipos-w/paygate/internal/logger"
)

func handleTopUp(accountService accountService, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount" validate:"required"`
	}

	type response struct {
		Balance float64 `json:"balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		updated, err := accountService.TopUp(r.Context(), account.ID, data.Amount)

		switch {
		case err == nil:
			balance, _ := updated.Balance.Float64()
			render.JSON(w, response{Balance: balance})
		case errors.Is(err, apperrors.ErrInvalidAmount):
			render.ServiceError(w, "Top-up amount must be positive", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Account not found", http.StatusNotFound)
		default:
			l.Error("Failed to top up", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListLedger(accountService accountService, l logger.Logger) http.Handler {
	type entry struct {
		ID          string    `json:"id"`
		Amount      float64   `json:"amount"`
		Category    string    `json:"category"`
		Description string    `json:"description,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		list, err := accountService.ListLedger(r.Context(), account.ID, limit, offset)
		if err != nil {
			l.Error("Failed to list ledger entries", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		entries := make([]entry, 0, len(list))
		for _, e := range list {
			amount, _ := e.Amount.Float64()
			entries = append(entries, entry{
				ID:          e.ID.String(),
				Amount:      amount,
				Category:    e.Category,
				Description: e.Description,
				CreatedAt:   e.CreatedAt,
			})
		}

		render.JSON(w, entries)
	})
}
