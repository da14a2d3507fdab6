package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/kittipos-w/paygate/internal/apperrors"
	"github.com/kittipos-w/paygate/internal/models"
)

type AccountRepo struct {
	DB DBTX
}

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (id, username, password_hash, balance)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, username, password_hash, balance
`

func (r *AccountRepo) CreateAccount(ctx context.Context, username string, hashedPassword string, balance decimal.Decimal) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, createAccount, uuid.New(), username, hashedPassword, balance)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return account, apperrors.ErrAccountExists
		}

		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const getAccountByID = `-- name: GetAccountByID
SELECT id, created_at, username, password_hash, balance FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetAccountByID(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByID, accountID)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

const getAccountByUsername = `-- name: GetAccountByUsername
SELECT id, created_at, username, password_hash, balance FROM accounts
WHERE username = $1
`

func (r *AccountRepo) GetAccountByUsername(ctx context.Context, username string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByUsername, username)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

// Check balance and apply the delta in one statement. The update matches
// zero rows either when the account is missing or when the result would be
// negative; separate read-then-write steps would reopen the race between
// concurrent purchases.
const applyDelta = `-- name: ApplyDelta
UPDATE accounts
SET balance = balance + $2
WHERE id = $1 AND balance + $2 >= 0
RETURNING id, created_at, username, password_hash, balance
`

func (r *AccountRepo) ApplyDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, applyDelta, accountID, delta)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Zero rows updated: tell a missing account apart from insolvency
		account, err = r.GetAccountByID(ctx, accountID)
		if err != nil {
			return account, err
		}
		return account, apperrors.ErrInsufficientFunds
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.CreatedAt, &a.Username, &a.HashedPassword, &a.Balance)
	return a, err
}
