package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kittipos-w/paygate/internal/handlers/accountctx"
	"github.com/kittipos-w/paygate/internal/handlers/render"
	"github.com/kittipos-w/paygate/internal/models"
)

type sessionParser interface {
	Parse(token string) (uuid.UUID, error)
}

type accountGetter interface {
	GetAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error)
}

// AuthMiddleware resolves the bearer session token into an account and puts
// it into the request context
func AuthMiddleware(sessions sessionParser, accounts accountGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			accountID, err := sessions.Parse(token)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			account, err := accounts.GetAccount(r.Context(), accountID)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := accountctx.New(r.Context(), account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
