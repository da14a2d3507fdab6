package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kittipos-w/paygate/internal/models"
)

// Account repository interface
type AccountRepo interface {
	// Create account with the given opening balance
	// If account with the username exists already has to return apperrors.ErrAccountExists
	CreateAccount(ctx context.Context, username string, hashedPassword string, balance decimal.Decimal) (models.Account, error)

	// Get account by it's id or username
	// If account not found must return apperrors.ErrAccountNotFound
	GetAccountByID(ctx context.Context, accountID uuid.UUID) (models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (models.Account, error)

	// Apply signed delta to the account balance as one conditional update:
	// the balance changes only if the result stays non negative.
	// Returns apperrors.ErrInsufficientFunds if the account exists but the
	// delta would drive it negative, apperrors.ErrAccountNotFound otherwise.
	ApplyDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (models.Account, error)
}

// Ledger repository interface
// Entries are append only: there is no update or delete
type LedgerRepo interface {
	CreateEntry(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, category string, description string) (models.LedgerEntry, error)

	// List account entries, newest first
	ListEntries(ctx context.Context, accountID uuid.UUID, limit int, offset int) ([]models.LedgerEntry, error)

	// Sum of all account entries, zero if there are none
	SumEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
}

// Token repository interface
type TokenRepo interface {
	// Create quantity independent tokens bound to the account and price
	CreateBatch(ctx context.Context, accountID uuid.UUID, price decimal.Decimal, quantity int) ([]models.Token, error)

	// Get token whether it is used or not
	// If token not found must return apperrors.ErrTokenNotFound
	GetToken(ctx context.Context, tokenID uuid.UUID) (models.Token, error)

	// Mark token used as one conditional update: succeeds only if the token
	// is not used yet, so exactly one of any number of concurrent callers
	// may observe success.
	// If the token is already used must return apperrors.ErrTokenAlreadyUsed
	// together with the token carrying the original used_at.
	// If the token not found must return apperrors.ErrTokenNotFound.
	Redeem(ctx context.Context, tokenID uuid.UUID) (models.Token, error)

	// List account tokens, newest first
	ListTokens(ctx context.Context, accountID uuid.UUID, unusedOnly bool) ([]models.Token, error)
}

// Storage aggregates repositories over a shared connection scope
type Storage interface {
	Account() AccountRepo
	Ledger() LedgerRepo
	Token() TokenRepo

	// Run fn against a transaction backed Storage
	// Commits if fn returns nil, rolls back otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
