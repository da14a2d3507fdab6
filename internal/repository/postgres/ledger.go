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

type LedgerRepo struct {
	DB DBTX
}

const createEntry = `-- name: CreateEntry
INSERT INTO ledger_entries (id, account_id, amount, category, description)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, account_id, amount, category, COALESCE(description, '')
`

func (r *LedgerRepo) CreateEntry(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, category string, description string) (models.LedgerEntry, error) {
	rows, _ := r.DB.Query(ctx, createEntry, uuid.New(), accountID, amount, category, description)
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.ForeignKeyViolation:
				return entry, apperrors.ErrAccountNotFound
			case pgerrcode.CheckViolation:
				return entry, apperrors.ErrInvalidCategory
			}
		}

		return entry, fmt.Errorf("db error: %w", err)
	}

	return entry, nil
}

const listEntries = `-- name: ListEntries
SELECT id, created_at, account_id, amount, category, COALESCE(description, '')
FROM ledger_entries
WHERE account_id = $1
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3
`

func (r *LedgerRepo) ListEntries(ctx context.Context, accountID uuid.UUID, limit int, offset int) ([]models.LedgerEntry, error) {
	rows, _ := r.DB.Query(ctx, listEntries, accountID, limit, offset)
	entries, err := pgx.CollectRows(rows, rowToEntry)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entries, nil
}

const sumEntries = `-- name: SumEntries
SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
WHERE account_id = $1
`

func (r *LedgerRepo) SumEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	rows, _ := r.DB.Query(ctx, sumEntries, accountID)
	sum, err := pgx.CollectOneRow(rows, pgx.RowTo[decimal.Decimal])
	if err != nil {
		return sum, fmt.Errorf("db error: %w", err)
	}

	return sum, nil
}

func rowToEntry(row pgx.CollectableRow) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.CreatedAt, &e.AccountID, &e.Amount, &e.Category, &e.Description)
	return e, err
}
