package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pixelchat_server/internal/model"
	"github.com/qs3c/pixelchat_server/internal/testutil"
)

func TestPromoRepository_IncrementUses(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPromoRepository(db)
	ctx := context.Background()

	promo := testutil.TestPromoCode(t, db, "LAUNCH", 2, 30)

	ok, err := repo.IncrementUses(ctx, promo.ID, 0, true)
	require.NoError(t, err)
	assert.True(t, ok)

	// 过期的观察值不会生效
	ok, err = repo.IncrementUses(ctx, promo.ID, 0, true)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.IncrementUses(ctx, promo.ID, 1, false)
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := repo.GetByCode(ctx, "LAUNCH")
	require.NoError(t, err)
	assert.Equal(t, 2, found.CurrentUses)
	assert.False(t, found.IsActive)
}

func TestPromoRepository_TransactionRollback(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPromoRepository(db)
	ctx := context.Background()

	promo := testutil.TestPromoCode(t, db, "ROLLBACK", 5, 30)
	user := testutil.TestUser(t, db)

	boom := errors.New("boom")
	err := repo.Transaction(ctx, func(promos *PromoRepository, users *UserRepository) error {
		if _, err := promos.IncrementUses(ctx, promo.ID, 0, true); err != nil {
			return err
		}
		if err := promos.CreateRedemption(ctx, &model.PromoRedemption{
			PromoCodeID:  promo.ID,
			UserID:       user.ID,
			GrantedUntil: time.Now().UTC(),
			RedeemedAt:   time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	found, err := repo.GetByCode(ctx, "ROLLBACK")
	require.NoError(t, err)
	assert.Equal(t, 0, found.CurrentUses)

	count, err := repo.CountRedemptions(ctx, promo.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPromoRepository_List(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPromoRepository(db)

	testutil.TestPromoCode(t, db, "ONE", 1, 7)
	testutil.TestPromoCode(t, db, "TWO", 1, 7, testutil.WithInactive())

	promos, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, promos, 2)
}
