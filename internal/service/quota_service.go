package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/model"
	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/pkg/metrics"
	"github.com/qs3c/pixelchat_server/internal/repository"
)

var ErrQuotaExceeded = errors.New("今日消息额度已用完")

// QuotaClass 配额等级
type QuotaClass string

const (
	ClassGuest     QuotaClass = "guest"
	ClassEssential QuotaClass = model.PlanEssential
	ClassAdvanced  QuotaClass = model.PlanAdvanced
)

const guestCounterTTL = 48 * time.Hour

// Allowance 剩余额度；Unlimited 为 true 时忽略 Count
type Allowance struct {
	Unlimited bool
	Count     int
}

// Exhausted 额度是否已用完
func (a Allowance) Exhausted() bool {
	return !a.Unlimited && a.Count <= 0
}

// 额度未满时自增并返回新值，已满返回 -1
var guestIncrScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
	return -1
end
current = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return current
`)

type QuotaService struct {
	userRepo *repository.UserRepository
	rdb      *redis.Client
	cfg      *config.Config
	now      func() time.Time
}

func NewQuotaService(userRepo *repository.UserRepository, rdb *redis.Client, cfg *config.Config) *QuotaService {
	return &QuotaService{
		userRepo: userRepo,
		rdb:      rdb,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// DailyLimit 各等级每日上限
func (s *QuotaService) DailyLimit(class QuotaClass) Allowance {
	switch class {
	case ClassAdvanced:
		return Allowance{Unlimited: true}
	case ClassGuest:
		return Allowance{Count: s.cfg.Quota.GuestDailyLimit}
	default:
		return Allowance{Count: s.cfg.Quota.EssentialDailyLimit}
	}
}

// ClassOf 账户当前配额等级
func (s *QuotaService) ClassOf(user *model.User) QuotaClass {
	return QuotaClass(user.EffectivePlan(s.now()))
}

// EffectiveUsedToday 最近一次发送不在今天（UTC）时视为 0
func (s *QuotaService) EffectiveUsedToday(user *model.User) int {
	if user.LastMessageDate == nil || !sameDay(*user.LastMessageDate, s.now()) {
		return 0
	}
	return user.MessagesUsedToday
}

// Remaining 账户剩余额度
func (s *QuotaService) Remaining(user *model.User) Allowance {
	limit := s.DailyLimit(s.ClassOf(user))
	if limit.Unlimited {
		return limit
	}
	return Allowance{Count: max(0, limit.Count-s.EffectiveUsedToday(user))}
}

// CanSend 是否还能发送
func (s *QuotaService) CanSend(user *model.User) bool {
	return !s.Remaining(user).Exhausted()
}

// RecordSent 记一次发送。额度已满时返回 ErrQuotaExceeded 且计数不变；
// 成功时 user 被刷新为最新状态
func (s *QuotaService) RecordSent(ctx context.Context, user *model.User) (Allowance, error) {
	now := s.now()

	if user.PlanLapsed(now) {
		if err := s.userRepo.DowngradeLapsed(ctx, user.ID, now); err != nil {
			return Allowance{}, fmt.Errorf("downgrade lapsed plan: %w", err)
		}
	}

	class := s.ClassOf(user)
	limit := s.DailyLimit(class)
	bound := limit.Count
	if limit.Unlimited {
		bound = -1
	}

	ok, err := s.userRepo.RecordMessage(ctx, user.ID, now, bound)
	if err != nil {
		return Allowance{}, fmt.Errorf("record message: %w", err)
	}
	if !ok {
		metrics.QuotaRejections.WithLabelValues(string(class)).Inc()
		return Allowance{Count: 0}, ErrQuotaExceeded
	}

	fresh, err := s.userRepo.GetByID(ctx, user.ID)
	if err != nil {
		return Allowance{}, err
	}
	*user = *fresh

	return s.Remaining(user), nil
}

// GuestRemaining 游客剩余额度
func (s *QuotaService) GuestRemaining(ctx context.Context, guestID string) (Allowance, error) {
	used, err := s.guestUsed(ctx, guestID)
	if err != nil {
		return Allowance{}, err
	}
	limit := s.DailyLimit(ClassGuest)
	return Allowance{Count: max(0, limit.Count-used)}, nil
}

// RecordGuestSent 游客记一次发送，额度已满返回 ErrQuotaExceeded
func (s *QuotaService) RecordGuestSent(ctx context.Context, guestID string) (Allowance, error) {
	limit := s.DailyLimit(ClassGuest)

	n, err := guestIncrScript.Run(ctx, s.rdb,
		[]string{s.guestKey(guestID)},
		limit.Count, int(guestCounterTTL.Seconds()),
	).Int64()
	if err != nil {
		return Allowance{}, fmt.Errorf("record guest message: %w", err)
	}
	if n < 0 {
		metrics.QuotaRejections.WithLabelValues(string(ClassGuest)).Inc()
		return Allowance{Count: 0}, ErrQuotaExceeded
	}

	return Allowance{Count: max(0, limit.Count-int(n))}, nil
}

// GetQuotaInfo 获取用户配额信息
func (s *QuotaService) GetQuotaInfo(user *model.User) *dto.QuotaInfo {
	class := s.ClassOf(user)
	return s.buildQuotaInfo(class, s.EffectiveUsedToday(user), s.Remaining(user))
}

// GetGuestQuotaInfo 获取游客配额信息
func (s *QuotaService) GetGuestQuotaInfo(ctx context.Context, guestID string) (*dto.QuotaInfo, error) {
	used, err := s.guestUsed(ctx, guestID)
	if err != nil {
		return nil, err
	}
	limit := s.DailyLimit(ClassGuest)
	return s.buildQuotaInfo(ClassGuest, used, Allowance{Count: max(0, limit.Count-used)}), nil
}

// NextReset 下一个 UTC 零点
func (s *QuotaService) NextReset() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func (s *QuotaService) buildQuotaInfo(class QuotaClass, used int, remaining Allowance) *dto.QuotaInfo {
	reset := s.NextReset()
	info := &dto.QuotaInfo{
		Class:          string(class),
		Unlimited:      remaining.Unlimited,
		UsedToday:      used,
		ResetAt:        reset.Format(time.RFC3339),
		ResetInSeconds: int64(reset.Sub(s.now()).Seconds()),
	}
	if !remaining.Unlimited {
		limit := s.DailyLimit(class).Count
		count := remaining.Count
		info.DailyLimit = &limit
		info.Remaining = &count
	}
	return info
}

func (s *QuotaService) guestUsed(ctx context.Context, guestID string) (int, error) {
	used, err := s.rdb.Get(ctx, s.guestKey(guestID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read guest counter: %w", err)
	}
	return used, nil
}

func (s *QuotaService) guestKey(guestID string) string {
	return fmt.Sprintf("quota:guest:%s:%s", guestID, s.now().UTC().Format(time.DateOnly))
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
