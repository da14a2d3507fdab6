package postgres

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kittipos-w/paygate/internal/apperrors"
	"github.com/kittipos-w/paygate/internal/repository"
	"github.com/kittipos-w/paygate/internal/testutil"
)

func TestTokenRepo(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, outerTx DBTX, fn func(pgx.Tx, repository.Storage)) {
		testutil.InTx(outerTx, t, func(innerTx pgx.Tx) {
			storage := NewStorage(innerTx)
			fn(innerTx, storage)
		})
	}

	price := decimal.RequireFromString("0.10")

	t.Run("CreateBatch", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			account, err := storage.Account().CreateAccount(t.Context(), "alice", "hash", decimal.Zero)
			require.NoError(t, err)

			t.Run("create ok", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					tokens, err := storage.Token().CreateBatch(t.Context(), account.ID, price, 5)

					require.NoError(t, err)
					require.Len(t, tokens, 5)

					seen := make(map[uuid.UUID]bool, len(tokens))
					for _, token := range tokens {
						require.False(t, seen[token.ID], "token ids must be distinct")
						seen[token.ID] = true

						require.Equal(t, account.ID, token.AccountID)
						require.True(t, token.Price.Equal(price))
						require.False(t, token.Used, "new token must be unused")
						require.Nil(t, token.UsedAt)
					}
				})
			})

			t.Run("zero quantity fails", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Token().CreateBatch(t.Context(), account.ID, price, 0)

					require.ErrorIs(t, err, apperrors.ErrInvalidAmount)
				})
			})

			t.Run("unknown account fails", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Token().CreateBatch(t.Context(), uuid.New(), price, 1)

					require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
				})
			})
		})
	})

	t.Run("Redeem", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			account, err := storage.Account().CreateAccount(t.Context(), "bob", "hash", decimal.Zero)
			require.NoError(t, err)

			t.Run("redeem ok", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					tokens, err := storage.Token().CreateBatch(t.Context(), account.ID, price, 1)
					require.NoError(t, err)

					token, err := storage.Token().Redeem(t.Context(), tokens[0].ID)

					require.NoError(t, err)
					require.True(t, token.Used)
					require.NotNil(t, token.UsedAt)
					require.Equal(t, account.ID, token.AccountID)
					require.WithinDuration(t, time.Now(), *token.UsedAt, time.Minute)
				})
			})

			t.Run("second redeem fails and keeps original used_at", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					tokens, err := storage.Token().CreateBatch(t.Context(), account.ID, price, 1)
					require.NoError(t, err)

					first, err := storage.Token().Redeem(t.Context(), tokens[0].ID)
					require.NoError(t, err)

					second, err := storage.Token().Redeem(t.Context(), tokens[0].ID)

					require.ErrorIs(t, err, apperrors.ErrTokenAlreadyUsed, "should return well known error")
					require.NotNil(t, second.UsedAt)
					require.True(t, second.UsedAt.Equal(*first.UsedAt), "used_at must not be overwritten")
				})
			})

			t.Run("redeem unknown token", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Token().Redeem(t.Context(), uuid.New())

					require.ErrorIs(t, err, apperrors.ErrTokenNotFound)
				})
			})
		})
	})

	// Double redeem race: concurrent callers on separate connections, so no
	// tx rollback helper here
	t.Run("Redeem concurrent", func(t *testing.T) {
		storage := NewStorage(pg.Pool)

		account, err := storage.Account().CreateAccount(t.Context(), "race", "hash", decimal.Zero)
		require.NoError(t, err)

		tokens, err := storage.Token().CreateBatch(t.Context(), account.ID, price, 1)
		require.NoError(t, err)
		tokenID := tokens[0].ID

		const attempts = 16
		errs := make([]error, attempts)

		var wg sync.WaitGroup
		for i := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = storage.Token().Redeem(t.Context(), tokenID)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, apperrors.ErrTokenAlreadyUsed, "losers must observe the token as spent")
		}
		require.Equal(t, 1, succeeded, "exactly one concurrent redeem may succeed")
	})

	t.Run("ListTokens", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			account, err := storage.Account().CreateAccount(t.Context(), "carol", "hash", decimal.Zero)
			require.NoError(t, err)

			tokens, err := storage.Token().CreateBatch(t.Context(), account.ID, price, 3)
			require.NoError(t, err)

			_, err = storage.Token().Redeem(t.Context(), tokens[0].ID)
			require.NoError(t, err)

			t.Run("all tokens", func(t *testing.T) {
				list, err := storage.Token().ListTokens(t.Context(), account.ID, false)

				require.NoError(t, err)
				require.Len(t, list, 3)
				for i := 1; i < len(list); i++ {
					require.False(t, list[i-1].CreatedAt.Before(list[i].CreatedAt), "tokens must be ordered newest first")
				}
			})

			t.Run("unused only", func(t *testing.T) {
				list, err := storage.Token().ListTokens(t.Context(), account.ID, true)

				require.NoError(t, err)
				require.Len(t, list, 2)
				for _, token := range list {
					require.False(t, token.Used)
				}
			})

			t.Run("repeated read returns same result", func(t *testing.T) {
				first, err := storage.Token().ListTokens(t.Context(), account.ID, false)
				require.NoError(t, err)

				second, err := storage.Token().ListTokens(t.Context(), account.ID, false)
				require.NoError(t, err)

				require.Equal(t, first, second, "list without intervening writes must be stable")
			})
		})
	})
}
