package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLedger(t *testing.T) (*miniredis.Miniredis, *Ledger) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return mr, New(rdb, time.Hour)
}

func TestLedger_Do(t *testing.T) {
	ctx := context.Background()

	t.Run("first delivery runs and marks done", func(t *testing.T) {
		mr, l := setupTestLedger(t)

		calls := 0
		dup, err := l.Do(ctx, "evt_1", func() error { calls++; return nil })
		require.NoError(t, err)
		assert.False(t, dup)
		assert.Equal(t, 1, calls)

		v, err := mr.Get("billing:event:evt_1")
		require.NoError(t, err)
		assert.Equal(t, "done", v)
		assert.Equal(t, time.Hour, mr.TTL("billing:event:evt_1"))
	})

	t.Run("completed event is a duplicate", func(t *testing.T) {
		_, l := setupTestLedger(t)

		calls := 0
		_, err := l.Do(ctx, "evt_1", func() error { calls++; return nil })
		require.NoError(t, err)

		dup, err := l.Do(ctx, "evt_1", func() error { calls++; return nil })
		require.NoError(t, err)
		assert.True(t, dup)
		assert.Equal(t, 1, calls)
	})

	t.Run("in-flight event", func(t *testing.T) {
		mr, l := setupTestLedger(t)
		require.NoError(t, mr.Set("billing:event:evt_2", "processing"))

		_, err := l.Do(ctx, "evt_2", func() error {
			t.Fatal("should not run")
			return nil
		})
		assert.ErrorIs(t, err, ErrInFlight)
	})

	t.Run("failure releases claim", func(t *testing.T) {
		mr, l := setupTestLedger(t)
		boom := errors.New("db down")

		_, err := l.Do(ctx, "evt_3", func() error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.False(t, mr.Exists("billing:event:evt_3"))

		dup, err := l.Do(ctx, "evt_3", func() error { return nil })
		require.NoError(t, err)
		assert.False(t, dup)
	})

	t.Run("redis down still processes", func(t *testing.T) {
		mr, l := setupTestLedger(t)
		mr.Close()

		calls := 0
		dup, err := l.Do(ctx, "evt_4", func() error { calls++; return nil })
		require.NoError(t, err)
		assert.False(t, dup)
		assert.Equal(t, 1, calls)
	})
}
