package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kittipos-w/paygate/internal/apperrors"
	"github.com/kittipos-w/paygate/internal/models"
	"github.com/kittipos-w/paygate/internal/repository"
)

const (
	ReasonNotFound    = "not_found"
	ReasonAlreadyUsed = "already_used"
)

type PurchaseResult struct {
	TokenIDs         []uuid.UUID
	TotalCost        decimal.Decimal
	RemainingBalance decimal.Decimal
}

// RedeemResult is a business outcome, not an error: a spent or unknown token
// is a declined redemption, while a store failure surfaces as an error.
type RedeemResult struct {
	Valid     bool
	AccountID uuid.UUID

	// Set only when Valid is false
	Reason string

	// Original spend time for already used tokens
	UsedAt *time.Time
}

type Service struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) *Service {
	return &Service{storage: storage}
}

// Purchase quantity tokens at unitPrice each.
// The conditional debit, the ledger entry and the token rows are one
// transaction: a failure anywhere rolls back everything including the debit.
// The remaining balance comes from the debit's own returned row, there is no
// re-read after commit.
func (s *Service) Purchase(ctx context.Context, accountID uuid.UUID, quantity int, unitPrice decimal.Decimal) (PurchaseResult, error) {
	var result PurchaseResult

	if quantity <= 0 || unitPrice.IsNegative() {
		return result, apperrors.ErrInvalidAmount
	}

	totalCost := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		account, err := store.Account().ApplyDelta(ctx, accountID, totalCost.Neg())
		if errors.Is(err, apperrors.ErrInsufficientFunds) {
			return fmt.Errorf("balance %s, required %s: %w", account.Balance, totalCost, err)
		}
		if err != nil {
			return err
		}

		_, err = store.Ledger().CreateEntry(ctx, accountID, totalCost.Neg(), models.EntryCategoryPurchase, fmt.Sprintf("Purchase %d tokens", quantity))
		if err != nil {
			return err
		}

		tokens, err := store.Token().CreateBatch(ctx, accountID, unitPrice, quantity)
		if err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(tokens))
		for _, t := range tokens {
			ids = append(ids, t.ID)
		}

		result = PurchaseResult{
			TokenIDs:         ids,
			TotalCost:        totalCost,
			RemainingBalance: account.Balance,
		}
		return nil
	})

	return result, err
}

// Redeem spends the token exactly once.
// At most one of any number of concurrent calls for the same token observes
// Valid true; there is no way to un-redeem.
func (s *Service) Redeem(ctx context.Context, tokenID uuid.UUID) (RedeemResult, error) {
	token, err := s.storage.Token().Redeem(ctx, tokenID)

	switch {
	case err == nil:
		return RedeemResult{Valid: true, AccountID: token.AccountID, UsedAt: token.UsedAt}, nil
	case errors.Is(err, apperrors.ErrTokenNotFound):
		return RedeemResult{Reason: ReasonNotFound}, nil
	case errors.Is(err, apperrors.ErrTokenAlreadyUsed):
		return RedeemResult{Reason: ReasonAlreadyUsed, UsedAt: token.UsedAt}, nil
	default:
		return RedeemResult{}, err
	}
}

// List account tokens, newest first
func (s *Service) ListTokens(ctx context.Context, accountID uuid.UUID, unusedOnly bool) ([]models.Token, error) {
	if _, err := s.storage.Account().GetAccountByID(ctx, accountID); err != nil {
		return nil, err
	}

	return s.storage.Token().ListTokens(ctx, accountID, unusedOnly)
}
