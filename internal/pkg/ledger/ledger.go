package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const (
	keyPrefix        = "billing:event:"
	statusProcessing = "processing"
	statusDone       = "done"

	// 处理中标记的存活时间，进程崩溃后可被重新认领
	inFlightTTL = 5 * time.Minute
)

var ErrInFlight = errors.New("billing event is in-flight")

// Ledger 基于 Redis 记录已处理的 webhook 事件 ID
type Ledger struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Ledger {
	return &Ledger{rdb: rdb, ttl: ttl}
}

// Do 认领 eventID 后执行 fn。已完成的事件返回 duplicate=true 且不执行 fn；
// 正在处理的事件返回 ErrInFlight；fn 失败时释放认领以便重试。
// Redis 不可用时直接执行 fn。
func (l *Ledger) Do(ctx context.Context, eventID string, fn func() error) (duplicate bool, err error) {
	if eventID == "" {
		return false, fn()
	}
	key := keyPrefix + eventID

	claimed, err := l.rdb.SetNX(ctx, key, statusProcessing, inFlightTTL).Result()
	if err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("Event ledger unavailable, processing without dedupe")
		return false, fn()
	}

	if !claimed {
		status, err := l.rdb.Get(ctx, key).Result()
		switch {
		case err == nil && status == statusDone:
			return true, nil
		case err == nil:
			return false, ErrInFlight
		case errors.Is(err, redis.Nil):
			// 认领已过期，重新尝试一次
			return l.Do(ctx, eventID, fn)
		default:
			log.Warn().Err(err).Str("event_id", eventID).Msg("Event ledger unavailable, processing without dedupe")
			return false, fn()
		}
	}

	if err := fn(); err != nil {
		if delErr := l.rdb.Del(context.WithoutCancel(ctx), key).Err(); delErr != nil {
			log.Warn().Err(delErr).Str("event_id", eventID).Msg("Failed to release event claim")
		}
		return false, err
	}

	if err := l.rdb.Set(context.WithoutCancel(ctx), key, statusDone, l.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("Failed to mark event as processed")
	}
	return false, nil
}
