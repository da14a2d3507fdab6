package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kittipos-w/paygate/internal/handlers/middleware"
	"github.com/kittipos-w/paygate/internal/logger"
	"github.com/kittipos-w/paygate/internal/models"
	"github.com/kittipos-w/paygate/internal/service/token"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	accountService accountService,
	tokenService tokenService,
	sessions sessionManager,
	tokenPrice decimal.Decimal,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(sessions, accountService)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	api := http.NewServeMux()

	api.Handle("POST /accounts/register", handleRegister(accountService, sessions, logger))
	api.Handle("POST /accounts/login", handleLogin(accountService, sessions, logger))
	api.Handle("GET /accounts/me", withAuth(handleAccountMe()))

	api.Handle("POST /balance/topup", withAuth(handleTopUp(accountService, logger)))
	api.Handle("GET /ledger", withAuth(handleListLedger(accountService, logger)))

	api.Handle("POST /tokens/purchase", withAuth(handlePurchase(tokenService, tokenPrice, logger)))
	api.Handle("GET /tokens", withAuth(handleListTokens(tokenService, logger)))

	// Called by the verification gateway, no account session required
	api.Handle("POST /tokens/redeem", handleRedeem(tokenService, logger))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type accountService interface {
	Create(ctx context.Context, username string, password string, initialBalance decimal.Decimal) (models.Account, error)
	Authenticate(ctx context.Context, username string, password string) (models.Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error)
	TopUp(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (models.Account, error)
	ListLedger(ctx context.Context, accountID uuid.UUID, limit int, offset int) ([]models.LedgerEntry, error)
}

type tokenService interface {
	Purchase(ctx context.Context, accountID uuid.UUID, quantity int, unitPrice decimal.Decimal) (token.PurchaseResult, error)
	Redeem(ctx context.Context, tokenID uuid.UUID) (token.RedeemResult, error)
	ListTokens(ctx context.Context, accountID uuid.UUID, unusedOnly bool) ([]models.Token, error)
}

type sessionManager interface {
	Issue(account models.Account) (token string, expiresAt time.Time, err error)
	Parse(token string) (uuid.UUID, error)
}
