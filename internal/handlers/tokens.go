package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kittipos-w/paygate/internal/apperrors"
	"github.com/kittipos-w/paygate/internal/handlers/accountctx"
	"github.com/kittipos-w/paygate/internal/handlers/render"
	"github.com/kittipos-w/paygate/internal/logger"
	"github.com/kittipos-w/paygate/internal/service/token"
)

func handlePurchase(tokenService tokenService, tokenPrice decimal.Decimal, l logger.Logger) http.Handler {
	type request struct {
		Quantity int `json:"quantity" validate:"required,gt=0,max=100"`
	}

	type response struct {
		TokenIDs         []string `json:"token_ids"`
		Quantity         int      `json:"quantity"`
		TotalCost        float64  `json:"total_cost"`
		RemainingBalance float64  `json:"remaining_balance"`
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

		result, err := tokenService.Purchase(r.Context(), account.ID, data.Quantity, tokenPrice)

		switch {
		case err == nil:
			ids := make([]string, 0, len(result.TokenIDs))
			for _, id := range result.TokenIDs {
				ids = append(ids, id.String())
			}
			totalCost, _ := result.TotalCost.Float64()
			remaining, _ := result.RemainingBalance.Float64()
			render.JSON(w, response{
				TokenIDs:         ids,
				Quantity:         data.Quantity,
				TotalCost:        totalCost,
				RemainingBalance: remaining,
			})
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			// Error text carries current balance and required amount
			render.ServiceError(w, err.Error(), http.StatusPaymentRequired)
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Account not found", http.StatusNotFound)
		default:
			l.Error("Failed to purchase tokens", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListTokens(tokenService tokenService, l logger.Logger) http.Handler {
	type tokenItem struct {
		ID        string     `json:"id"`
		Price     float64    `json:"price"`
		Used      bool       `json:"used"`
		UsedAt    *time.Time `json:"used_at,omitempty"`
		CreatedAt time.Time  `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		// Default matches the common caller need: spendable tokens only
		unusedOnly := r.URL.Query().Get("unused_only") != "false"

		list, err := tokenService.ListTokens(r.Context(), account.ID, unusedOnly)
		if err != nil {
			l.Error("Failed to list tokens", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		tokens := make([]tokenItem, 0, len(list))
		for _, t := range list {
			price, _ := t.Price.Float64()
			tokens = append(tokens, tokenItem{
				ID:        t.ID.String(),
				Price:     price,
				Used:      t.Used,
				UsedAt:    t.UsedAt,
				CreatedAt: t.CreatedAt,
			})
		}

		render.JSON(w, tokens)
	})
}

func handleRedeem(tokenService tokenService, l logger.Logger) http.Handler {
	type request struct {
		TokenID string `json:"token_id" validate:"required"`
	}

	type response struct {
		Valid     bool       `json:"valid"`
		AccountID string     `json:"account_id,omitempty"`
		Reason    string     `json:"reason,omitempty"`
		UsedAt    *time.Time `json:"used_at,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		// A token id that is not even a uuid cannot exist in the store
		tokenID, err := uuid.Parse(data.TokenID)
		if err != nil {
			render.JSON(w, response{Valid: false, Reason: token.ReasonNotFound})
			return
		}

		result, err := tokenService.Redeem(r.Context(), tokenID)
		if err != nil {
			l.Error("Failed to redeem token", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		resp := response{
			Valid:  result.Valid,
			Reason: result.Reason,
			UsedAt: result.UsedAt,
		}
		if result.Valid {
			resp.AccountID = result.AccountID.String()
			resp.UsedAt = nil
		}

		render.JSON(w, resp)
	})
}
