package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pixelchat_server/internal/model"
	"github.com/qs3c/pixelchat_server/internal/testutil"
)

func TestUserRepository_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	// 创建测试用户
	created := testutil.TestUser(t, db)

	// 查询用户
	found, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, created.Username, found.Username)
	assert.Equal(t, model.PlanEssential, found.Plan)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	_, err := repo.GetByID(context.Background(), 99999)
	assert.Error(t, err)
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	email := "unique@example.com"
	testutil.TestUser(t, db, testutil.WithEmail(email))

	found, err := repo.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	assert.Equal(t, email, *found.Email)
}

func TestUserRepository_GetByBillingCustomerID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	ctx := context.Background()

	created := testutil.TestUser(t, db, testutil.WithBillingCustomer("cus_123"))

	found, err := repo.GetByBillingCustomerID(ctx, "cus_123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.GetByBillingCustomerID(ctx, "cus_missing")
	assert.Error(t, err)
}

func TestUserRepository_ExistsByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	ctx := context.Background()

	email := "exists@example.com"
	testutil.TestUser(t, db, testutil.WithEmail(email))

	exists, err := repo.ExistsByEmail(ctx, email)
	require.NoError(t, err)
	assert.True(t, exists)

	notExists, err := repo.ExistsByEmail(ctx, "notexists@example.com")
	require.NoError(t, err)
	assert.False(t, notExists)
}

func TestUserRepository_ApplyBillingEvent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("first event applies", func(t *testing.T) {
		user := testutil.TestUser(t, db)

		applied, err := repo.ApplyBillingEvent(ctx, user.ID, base, map[string]interface{}{"plan": model.PlanAdvanced})
		require.NoError(t, err)
		assert.True(t, applied)

		found, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PlanAdvanced, found.Plan)
		require.NotNil(t, found.BillingEventAt)
		assert.True(t, base.Equal(*found.BillingEventAt))
	})

	t.Run("same timestamp replays", func(t *testing.T) {
		user := testutil.TestUser(t, db, testutil.WithBillingEventAt(base))

		applied, err := repo.ApplyBillingEvent(ctx, user.ID, base, map[string]interface{}{"plan": model.PlanAdvanced})
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("older event is discarded", func(t *testing.T) {
		user := testutil.TestUser(t, db, testutil.WithBillingEventAt(base))

		applied, err := repo.ApplyBillingEvent(ctx, user.ID, base.Add(-time.Minute), map[string]interface{}{"plan": model.PlanAdvanced})
		require.NoError(t, err)
		assert.False(t, applied)

		found, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PlanEssential, found.Plan)
	})
}

func TestUserRepository_RecordMessage(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)

	t.Run("first message of the day starts at one", func(t *testing.T) {
		user := testutil.TestUser(t, db)

		ok, err := repo.RecordMessage(ctx, user.ID, now, 3)
		require.NoError(t, err)
		assert.True(t, ok)

		found, _ := repo.GetByID(ctx, user.ID)
		assert.Equal(t, 1, found.MessagesUsedToday)
		require.NotNil(t, found.LastMessageDate)
	})

	t.Run("stale counter resets", func(t *testing.T) {
		user := testutil.TestUser(t, db, testutil.WithMessagesUsed(3, now.AddDate(0, 0, -1)))

		ok, err := repo.RecordMessage(ctx, user.ID, now, 3)
		require.NoError(t, err)
		assert.True(t, ok)

		found, _ := repo.GetByID(ctx, user.ID)
		assert.Equal(t, 1, found.MessagesUsedToday)
	})

	t.Run("limit reached leaves counter unchanged", func(t *testing.T) {
		user := testutil.TestUser(t, db, testutil.WithMessagesUsed(3, now.Add(-time.Hour)))

		ok, err := repo.RecordMessage(ctx, user.ID, now, 3)
		require.NoError(t, err)
		assert.False(t, ok)

		found, _ := repo.GetByID(ctx, user.ID)
		assert.Equal(t, 3, found.MessagesUsedToday)
	})

	t.Run("unlimited ignores counter", func(t *testing.T) {
		user := testutil.TestUser(t, db, testutil.WithMessagesUsed(500, now.Add(-time.Hour)))

		ok, err := repo.RecordMessage(ctx, user.ID, now, -1)
		require.NoError(t, err)
		assert.True(t, ok)

		found, _ := repo.GetByID(ctx, user.ID)
		assert.Equal(t, 501, found.MessagesUsedToday)
	})
}

func TestUserRepository_DowngradeLapsed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	lapsed := testutil.TestUser(t, db, testutil.WithPlan(model.PlanAdvanced, &past))
	active := testutil.TestUser(t, db, testutil.WithPlan(model.PlanAdvanced, &future))
	lifetime := testutil.TestUser(t, db, testutil.WithPlan(model.PlanAdvanced, nil))

	for _, id := range []int64{lapsed.ID, active.ID, lifetime.ID} {
		require.NoError(t, repo.DowngradeLapsed(ctx, id, now))
	}

	found, _ := repo.GetByID(ctx, lapsed.ID)
	assert.Equal(t, model.PlanEssential, found.Plan)
	assert.Nil(t, found.PlanExpiry)

	found, _ = repo.GetByID(ctx, active.ID)
	assert.Equal(t, model.PlanAdvanced, found.Plan)

	found, _ = repo.GetByID(ctx, lifetime.ID)
	assert.Equal(t, model.PlanAdvanced, found.Plan)
}
