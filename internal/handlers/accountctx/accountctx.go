package accountctx

import (
	"context"

	"github.com/kittipos-w/paygate/internal/models"
)

type ctxKey string

const accountKey ctxKey = "account"

// Create a new context with the account
func New(ctx context.Context, a models.Account) context.Context {
	return context.WithValue(ctx, accountKey, a)
}

// Extract the account from the context
func FromContext(ctx context.Context) (models.Account, bool) {
	a, ok := ctx.Value(accountKey).(models.Account)
	return a, ok
}
