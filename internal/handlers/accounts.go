package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kittipos-w/paygate/internal/apperrors"
	"github.com/kittipos-w/paygate/internal/handlers/accountctx"
	"github.com/kittipos-w/paygate/internal/handlers/render"
	"github.com/kittipos-w/paygate/internal/logger"
	"github.com/kittipos-w/paygate/internal/models"
)

type accountResponse struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	Account     accountResponse `json:"account"`
	AccessToken string          `json:"access_token"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

func toAccountResponse(a models.Account) accountResponse {
	balance, _ := a.Balance.Float64()
	return accountResponse{
		ID:        a.ID.String(),
		Handle:    a.Username,
		Balance:   balance,
		CreatedAt: a.CreatedAt,
	}
}

func handleRegister(accountService accountService, sessions sessionManager, l logger.Logger) http.Handler {
	type request struct {
		Handle         string          `json:"handle" validate:"required,min=2,max=50"`
		Password       string          `json:"password" validate:"required,min=8"`
		InitialBalance decimal.Decimal `json:"initial_balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		account, err := accountService.Create(r.Context(), data.Handle, data.Password, data.InitialBalance)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrAccountExists):
				render.ServiceError(w, "Account already exists", http.StatusConflict)
			case errors.Is(err, apperrors.ErrInvalidAmount):
				render.ServiceError(w, "Initial balance must not be negative", http.StatusBadRequest)
			default:
				l.Error("Failed to create account", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		access, expiresAt, err := sessions.Issue(account)
		if err != nil {
			l.Error("Failed to issue session token", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, sessionResponse{
			Account:     toAccountResponse(account),
			AccessToken: access,
			ExpiresAt:   expiresAt,
		})
	})
}

func handleLogin(accountService accountService, sessions sessionManager, l logger.Logger) http.Handler {
	type request struct {
		Handle   string `json:"handle" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		account, err := accountService.Authenticate(r.Context(), data.Handle, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				render.ServiceError(w, "Invalid handle or password", http.StatusUnauthorized)
			default:
				l.Error("Failed to authenticate account", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		access, expiresAt, err := sessions.Issue(account)
		if err != nil {
			l.Error("Failed to issue session token", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, sessionResponse{
			Account:     toAccountResponse(account),
			AccessToken: access,
			ExpiresAt:   expiresAt,
		})
	})
}

func handleAccountMe() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, toAccountResponse(account))
	})
}
