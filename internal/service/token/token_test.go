package token

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kittipos-w/paygate/internal/apperrors"
	"github.com/kittipos-w/paygate/internal/repository"
	"github.com/kittipos-w/paygate/internal/repository/postgres"
	"github.com/kittipos-w/paygate/internal/service/account"
	"github.com/kittipos-w/paygate/internal/testutil"
)

func TestTokenService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	price := decimal.RequireFromString("0.10")

	inTx := func(t *testing.T, fn func(tokens *Service, accounts *account.Service, storage repository.Storage)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			fn(NewService(storage), account.NewService(nil, storage), storage)
		})
	}

	t.Run("Purchase", func(t *testing.T) {
		t.Run("purchase ok", func(t *testing.T) {
			inTx(t, func(tokens *Service, accounts *account.Service, storage repository.Storage) {
				acc, err := accounts.Create(t.Context(), "buyer", "password123", decimal.RequireFromString("10.00"))
				require.NoError(t, err)

				result, err := tokens.Purchase(t.Context(), acc.ID, 5, price)

				require.NoError(t, err)
				require.Len(t, result.TokenIDs, 5)
				require.True(t, result.TotalCost.Equal(decimal.RequireFromString("0.50")))
				require.True(t, result.RemainingBalance.Equal(decimal.RequireFromString("9.50")))

				sum, err := storage.Ledger().SumEntries(t.Context(), acc.ID)
				require.NoError(t, err)
				require.True(t, sum.Equal(result.RemainingBalance), "ledger sum must match the balance after purchase")
			})
		})

		t.Run("insufficient funds leaves everything untouched", func(t *testing.T) {
			inTx(t, func(tokens *Service, accounts *account.Service, storage repository.Storage) {
				acc, err := accounts.Create(t.Context(), "buyer", "password123", decimal.RequireFromString("9.50"))
				require.NoError(t, err)

				_, err = tokens.Purchase(t.Context(), acc.ID, 1000, price)

				require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
				require.ErrorContains(t, err, "9.5", "error should tell the current balance")
				require.ErrorContains(t, err, "100", "error should tell the required amount")

				got, err := accounts.GetAccount(t.Context(), acc.ID)
				require.NoError(t, err)
				require.True(t, got.Balance.Equal(decimal.RequireFromString("9.50")), "balance must stay unchanged")

				list, err := storage.Token().ListTokens(t.Context(), acc.ID, false)
				require.NoError(t, err)
				require.Empty(t, list, "no tokens may survive a failed purchase")

				entries, err := storage.Ledger().ListEntries(t.Context(), acc.ID, 50, 0)
				require.NoError(t, err)
				require.Len(t, entries, 1, "only the opening entry may exist")
			})
		})

		t.Run("non positive quantity fails", func(t *testing.T) {
			inTx(t, func(tokens *Service, accounts *account.Service, _ repository.Storage) {
				acc, err := accounts.Create(t.Context(), "buyer", "password123", decimal.NewFromInt(1))
				require.NoError(t, err)

				_, err = tokens.Purchase(t.Context(), acc.ID, 0, price)
				require.ErrorIs(t, err, apperrors.ErrInvalidAmount)

				_, err = tokens.Purchase(t.Context(), acc.ID, -3, price)
				require.ErrorIs(t, err, apperrors.ErrInvalidAmount)
			})
		})

		t.Run("negative price fails", func(t *testing.T) {
			inTx(t, func(tokens *Service, accounts *account.Service, _ repository.Storage) {
				acc, err := accounts.Create(t.Context(), "buyer", "password123", decimal.NewFromInt(1))
				require.NoError(t, err)

				_, err = tokens.Purchase(t.Context(), acc.ID, 1, decimal.NewFromInt(-1))

				require.ErrorIs(t, err, apperrors.ErrInvalidAmount)
			})
		})

		t.Run("unknown account fails", func(t *testing.T) {
			inTx(t, func(tokens *Service, _ *account.Service, _ repository.Storage) {
				_, err := tokens.Purchase(t.Context(), uuid.New(), 1, price)

				require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
			})
		})
	})

	t.Run("Redeem", func(t *testing.T) {
		t.Run("redeem ok then already used", func(t *testing.T) {
			inTx(t, func(tokens *Service, accounts *account.Service, _ repository.Storage) {
				acc, err := accounts.Create(t.Context(), "spender", "password123", decimal.NewFromInt(1))
				require.NoError(t, err)

				purchase, err := tokens.Purchase(t.Context(), acc.ID, 1, price)
				require.NoError(t, err)
				tokenID := purchase.TokenIDs[0]

				first, err := tokens.Redeem(t.Context(), tokenID)
				require.NoError(t, err)
				require.True(t, first.Valid)
				require.Equal(t, acc.ID, first.AccountID)
				require.NotNil(t, first.UsedAt)

				second, err := tokens.Redeem(t.Context(), tokenID)
				require.NoError(t, err, "a declined redemption is an outcome, not an error")
				require.False(t, second.Valid)
				require.Equal(t, ReasonAlreadyUsed, second.Reason)
				require.NotNil(t, second.UsedAt)
				require.True(t, second.UsedAt.Equal(*first.UsedAt), "decline should report the original spend time")
			})
		})

		t.Run("unknown token declined", func(t *testing.T) {
			inTx(t, func(tokens *Service, _ *account.Service, _ repository.Storage) {
				result, err := tokens.Redeem(t.Context(), uuid.New())

				require.NoError(t, err)
				require.False(t, result.Valid)
				require.Equal(t, ReasonNotFound, result.Reason)
				require.Nil(t, result.UsedAt)
			})
		})
	})

	t.Run("ListTokens", func(t *testing.T) {
		inTx(t, func(tokens *Service, accounts *account.Service, _ repository.Storage) {
			acc, err := accounts.Create(t.Context(), "lister", "password123", decimal.NewFromInt(1))
			require.NoError(t, err)

			purchase, err := tokens.Purchase(t.Context(), acc.ID, 3, price)
			require.NoError(t, err)

			_, err = tokens.Redeem(t.Context(), purchase.TokenIDs[0])
			require.NoError(t, err)

			all, err := tokens.ListTokens(t.Context(), acc.ID, false)
			require.NoError(t, err)
			require.Len(t, all, 3)

			unused, err := tokens.ListTokens(t.Context(), acc.ID, true)
			require.NoError(t, err)
			require.Len(t, unused, 2)

			_, err = tokens.ListTokens(t.Context(), uuid.New(), false)
			require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})
	})

	// Account lifecycle end to end: register, fund, buy, spend, get declined,
	// fail an oversized purchase without losing a cent.
	t.Run("Scenario", func(t *testing.T) {
		inTx(t, func(tokens *Service, accounts *account.Service, storage repository.Storage) {
			acc, err := accounts.Create(t.Context(), "scenario", "password123", decimal.Zero)
			require.NoError(t, err)
			require.True(t, acc.Balance.IsZero())

			acc, err = accounts.TopUp(t.Context(), acc.ID, decimal.RequireFromString("10.00"))
			require.NoError(t, err)
			require.True(t, acc.Balance.Equal(decimal.RequireFromString("10.00")))

			purchase, err := tokens.Purchase(t.Context(), acc.ID, 5, price)
			require.NoError(t, err)
			require.Len(t, purchase.TokenIDs, 5)
			require.True(t, purchase.RemainingBalance.Equal(decimal.RequireFromString("9.50")))

			seen := make(map[uuid.UUID]bool, len(purchase.TokenIDs))
			for _, id := range purchase.TokenIDs {
				require.False(t, seen[id], "token ids must be distinct")
				seen[id] = true
			}

			first, err := tokens.Redeem(t.Context(), purchase.TokenIDs[0])
			require.NoError(t, err)
			require.True(t, first.Valid)

			second, err := tokens.Redeem(t.Context(), purchase.TokenIDs[0])
			require.NoError(t, err)
			require.False(t, second.Valid)
			require.Equal(t, ReasonAlreadyUsed, second.Reason)

			_, err = tokens.Purchase(t.Context(), acc.ID, 1000, price)
			require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

			acc, err = accounts.GetAccount(t.Context(), acc.ID)
			require.NoError(t, err)
			require.True(t, acc.Balance.Equal(decimal.RequireFromString("9.50")), "failed purchase must not move the balance")

			sum, err := storage.Ledger().SumEntries(t.Context(), acc.ID)
			require.NoError(t, err)
			require.True(t, sum.Equal(acc.Balance), "ledger must reconcile to the balance")
		})
	})

	// Concurrent purchases race on the pool, separate connections each, so no
	// tx rollback helper here
	t.Run("Purchase concurrent", func(t *testing.T) {
		storage := postgres.NewStorage(pg.Pool)
		tokens := NewService(storage)
		accounts := account.NewService(nil, storage)

		acc, err := accounts.Create(t.Context(), "race-buyer", "password123", decimal.RequireFromString("0.50"))
		require.NoError(t, err)

		const attempts = 10
		errs := make([]error, attempts)

		var wg sync.WaitGroup
		for i := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = tokens.Purchase(t.Context(), acc.ID, 1, price)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, apperrors.ErrInsufficientFunds, "losers must fail on insolvency only")
		}
		require.Equal(t, 5, succeeded, "0.50 covers exactly five tokens at 0.10")

		got, err := accounts.GetAccount(t.Context(), acc.ID)
		require.NoError(t, err)
		require.True(t, got.Balance.IsZero(), "balance must land exactly at zero, never below")

		sum, err := storage.Ledger().SumEntries(t.Context(), acc.ID)
		require.NoError(t, err)
		require.True(t, sum.IsZero(), "ledger must reconcile after the race")

		list, err := tokens.ListTokens(t.Context(), acc.ID, false)
		require.NoError(t, err)
		require.Len(t, list, 5)
	})
}
