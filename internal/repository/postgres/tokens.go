package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/kittipos-w/paygate/internal/apperrors"
	"github.com/kittipos-w/paygate/internal/models"
)

type TokenRepo struct {
	DB DBTX
}

const createToken = `-- name: CreateToken
INSERT INTO tokens (id, account_id, price)
VALUES ($1, $2, $3)
RETURNING id, created_at, account_id, price, used, used_at
`

// Create quantity independent token rows in one round trip
func (r *TokenRepo) CreateBatch(ctx context.Context, accountID uuid.UUID, price decimal.Decimal, quantity int) ([]models.Token, error) {
	if quantity <= 0 {
		return nil, apperrors.ErrInvalidAmount
	}

	batch := &pgx.Batch{}
	for range quantity {
		batch.Queue(createToken, uuid.New(), accountID, price)
	}

	results := r.DB.SendBatch(ctx, batch)
	defer results.Close() // nolint:errcheck

	tokens := make([]models.Token, 0, quantity)
	for range quantity {
		rows, err := results.Query()
		if err != nil {
			return nil, mapTokenInsertError(err)
		}

		token, err := pgx.CollectOneRow(rows, rowToToken)
		if err != nil {
			return nil, mapTokenInsertError(err)
		}

		tokens = append(tokens, token)
	}

	return tokens, nil
}

const getToken = `-- name: GetToken
SELECT id, created_at, account_id, price, used, used_at FROM tokens
WHERE id = $1
`

func (r *TokenRepo) GetToken(ctx context.Context, tokenID uuid.UUID) (models.Token, error) {
	rows, _ := r.DB.Query(ctx, getToken, tokenID)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

// Test unused and mark used in one statement. The store guarantees the
// update is indivisible per row, so exactly one of any number of concurrent
// callers gets the row back; the rest fall through to the diagnose read.
const redeemToken = `-- name: RedeemToken
UPDATE tokens
SET used = TRUE, used_at = $2
WHERE id = $1 AND NOT used
RETURNING id, created_at, account_id, price, used, used_at
`

func (r *TokenRepo) Redeem(ctx context.Context, tokenID uuid.UUID) (models.Token, error) {
	rows, _ := r.DB.Query(ctx, redeemToken, tokenID, time.Now().UTC())
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Zero rows updated: token missing or spent already
		token, err = r.GetToken(ctx, tokenID)
		if err != nil {
			return token, err
		}
		return token, apperrors.ErrTokenAlreadyUsed
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const listTokens = `-- name: ListTokens
SELECT id, created_at, account_id, price, used, used_at FROM tokens
WHERE account_id = $1 AND (NOT $2 OR NOT used)
ORDER BY created_at DESC, id
`

func (r *TokenRepo) ListTokens(ctx context.Context, accountID uuid.UUID, unusedOnly bool) ([]models.Token, error) {
	rows, _ := r.DB.Query(ctx, listTokens, accountID, unusedOnly)
	tokens, err := pgx.CollectRows(rows, rowToToken)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tokens, nil
}

func mapTokenInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return apperrors.ErrAccountNotFound
	}

	return fmt.Errorf("db error: %w", err)
}

func rowToToken(row pgx.CollectableRow) (models.Token, error) {
	var t models.Token
	err := row.Scan(&t.ID, &t.CreatedAt, &t.AccountID, &t.Price, &t.Used, &t.UsedAt)
	return t, err
}
