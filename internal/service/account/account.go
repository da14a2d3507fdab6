package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kittipos-w/paygate/internal/apperrors"
	"github.com/kittipos-w/paygate/internal/models"
	"github.com/kittipos-w/paygate/internal/repository"
	"github.com/kittipos-w/paygate/internal/service/auth"
)

const defaultLedgerPageSize = 50

// Throwaway bcrypt hash compared against when the handle is unknown, so
// both failure paths of Authenticate cost one bcrypt comparison.
const unknownAccountHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type Service struct {
	hasher  auth.PasswordHasher
	storage repository.Storage
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage) *Service {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}

	return &Service{
		hasher:  hasher,
		storage: storage,
	}
}

// Create account with optional opening balance
// A positive opening balance is recorded as a topup ledger entry in the same
// transaction, so the ledger reconciles from the first observable state.
func (s *Service) Create(ctx context.Context, username string, password string, initialBalance decimal.Decimal) (models.Account, error) {
	var account models.Account

	if initialBalance.IsNegative() {
		return account, apperrors.ErrInvalidAmount
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return account, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	err = s.storage.InTx(ctx, func(store repository.Storage) error {
		account, err = store.Account().CreateAccount(ctx, username, hash, initialBalance)
		if err != nil {
			return err
		}

		if initialBalance.IsPositive() {
			_, err = store.Ledger().CreateEntry(ctx, account.ID, initialBalance, models.EntryCategoryTopup, "Opening balance")
		}

		return err
	})

	return account, err
}

// Authenticate account by handle and password
// Failure shape is constant: unknown handle and wrong password both return
// apperrors.ErrInvalidCredentials after a bcrypt comparison.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (models.Account, error) {
	account, err := s.storage.Account().GetAccountByUsername(ctx, username)

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrAccountNotFound):
		_ = s.hasher.Compare(unknownAccountHash, password)
		return models.Account{}, apperrors.ErrInvalidCredentials
	default:
		return models.Account{}, err
	}

	if err := s.hasher.Compare(account.HashedPassword, password); err != nil {
		return models.Account{}, apperrors.ErrInvalidCredentials
	}

	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	return s.storage.Account().GetAccountByID(ctx, accountID)
}

// Apply signed balance delta and append the matching ledger entry as one
// atomic unit: either both land or neither does.
func (s *Service) ApplyDelta(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, category string, description string) (models.Account, error) {
	var account models.Account

	if amount.IsZero() {
		return account, apperrors.ErrInvalidAmount
	}

	switch category {
	case models.EntryCategoryTopup, models.EntryCategoryPurchase, models.EntryCategoryRefund:
	default:
		return account, apperrors.ErrInvalidCategory
	}

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		var err error

		account, err = store.Account().ApplyDelta(ctx, accountID, amount)
		if err != nil {
			return err
		}

		_, err = store.Ledger().CreateEntry(ctx, accountID, amount, category, description)
		return err
	})

	return account, err
}

func (s *Service) TopUp(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (models.Account, error) {
	if !amount.IsPositive() {
		return models.Account{}, apperrors.ErrInvalidAmount
	}

	return s.ApplyDelta(ctx, accountID, amount, models.EntryCategoryTopup, fmt.Sprintf("Top-up %s", amount))
}

// List account ledger entries, newest first
func (s *Service) ListLedger(ctx context.Context, accountID uuid.UUID, limit int, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultLedgerPageSize
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.storage.Account().GetAccountByID(ctx, accountID); err != nil {
		return nil, err
	}

	return s.storage.Ledger().ListEntries(ctx, accountID, limit, offset)
}
