package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/billing"
	"github.com/qs3c/pixelchat_server/internal/model"
	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
	"github.com/qs3c/pixelchat_server/internal/pkg/metrics"
	"github.com/qs3c/pixelchat_server/internal/repository"
)

// 对账结果，用于指标和日志
const (
	OutcomeApplied      = "applied"
	OutcomeLookupMiss   = "lookup_miss"
	OutcomeStale        = "stale"
	OutcomeIgnored      = "ignored"
	OutcomeNotified     = "notified"
	OutcomeNotifyFailed = "notify_failed"
	OutcomeError        = "error"
)

const subscriptionStatusActive = "active"

// PeriodEndFetcher 从支付平台查询订阅当前周期结束时间
type PeriodEndFetcher interface {
	CurrentPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error)
}

// Notifier 账单侧通道
type Notifier interface {
	NotifyPaymentFailed(ctx context.Context, notice *dto.BillingNotice) error
}

// ReconcilerService 将已验签的账单事件应用到账户权益
type ReconcilerService struct {
	userRepo *repository.UserRepository
	fetcher  PeriodEndFetcher
	notifier Notifier
	cfg      *config.Config
	now      func() time.Time
}

var _ billing.Handler = (*ReconcilerService)(nil)

func NewReconcilerService(userRepo *repository.UserRepository, fetcher PeriodEndFetcher, notifier Notifier, cfg *config.Config) *ReconcilerService {
	return &ReconcilerService{
		userRepo: userRepo,
		fetcher:  fetcher,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile 处理一个账单事件。找不到账户、过期事件都不算错误；
// 返回错误时调用方应让支付平台重试
func (s *ReconcilerService) Reconcile(ctx context.Context, event billing.Event) error {
	if err := event.Accept(ctx, s); err != nil {
		s.record(ctx, event.EventMeta(), OutcomeError).Err(err).Msg("Billing event failed")
		return err
	}
	return nil
}

// CheckoutCompleted 首次购买：按邮箱找到账户并开通 advanced
func (s *ReconcilerService) CheckoutCompleted(ctx context.Context, e *billing.CheckoutCompleted) error {
	email := normalizeEmail(e.CustomerEmail)
	if email == "" {
		s.lookupMiss(ctx, e.Meta, "")
		return nil
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.lookupMiss(ctx, e.Meta, email)
			return nil
		}
		return fmt.Errorf("find account by email: %w", err)
	}

	expiry := s.checkoutExpiry(e)
	fields := map[string]interface{}{
		"plan":                model.PlanAdvanced,
		"plan_expiry":         expiry,
		"messages_used_today": 0,
	}
	if e.CustomerID != "" {
		fields["billing_customer_id"] = e.CustomerID
	}
	if e.SubscriptionID != "" {
		fields["billing_subscription_id"] = e.SubscriptionID
	}

	return s.apply(ctx, e.Meta, user, fields)
}

// checkoutExpiry 以事件创建时间为起点，重放时结果不变
func (s *ReconcilerService) checkoutExpiry(e *billing.CheckoutCompleted) time.Time {
	base := s.eventTime(e.Meta)

	interval := e.Interval
	if interval == billing.IntervalUnknown {
		interval = billing.IntervalMonth
		if e.AmountTotal >= s.cfg.Stripe.YearlyThresholdCents {
			interval = billing.IntervalYear
		}
	}

	if interval == billing.IntervalYear {
		return base.AddDate(1, 0, 0)
	}
	return base.AddDate(0, 1, 0)
}

// SubscriptionUpdated 订阅状态变化：active 为 advanced，其他状态回到 essential
func (s *ReconcilerService) SubscriptionUpdated(ctx context.Context, e *billing.SubscriptionUpdated) error {
	user, ok, err := s.findByCustomer(ctx, e.Meta, e.CustomerID)
	if err != nil || !ok {
		return err
	}

	fields := map[string]interface{}{}
	if e.Status == subscriptionStatusActive {
		periodEnd := e.CurrentPeriodEnd
		if periodEnd.IsZero() {
			if periodEnd, err = s.fetchPeriodEnd(ctx, e.SubscriptionID); err != nil {
				return err
			}
		}
		fields["plan"] = model.PlanAdvanced
		fields["plan_expiry"] = periodEnd
	} else {
		fields["plan"] = model.PlanEssential
		fields["plan_expiry"] = nil
	}
	if e.SubscriptionID != "" {
		fields["billing_subscription_id"] = e.SubscriptionID
	}

	return s.apply(ctx, e.Meta, user, fields)
}

// SubscriptionCanceled 订阅终止：回到 essential 并清空当日计数
func (s *ReconcilerService) SubscriptionCanceled(ctx context.Context, e *billing.SubscriptionCanceled) error {
	user, ok, err := s.findByCustomer(ctx, e.Meta, e.CustomerID)
	if err != nil || !ok {
		return err
	}

	return s.apply(ctx, e.Meta, user, map[string]interface{}{
		"plan":                model.PlanEssential,
		"plan_expiry":         nil,
		"messages_used_today": 0,
	})
}

// PaymentSucceeded 续费成功：到期时间以支付平台记录的当前周期结束为准
func (s *ReconcilerService) PaymentSucceeded(ctx context.Context, e *billing.PaymentSucceeded) error {
	user, ok, err := s.findByCustomer(ctx, e.Meta, e.CustomerID)
	if err != nil || !ok {
		return err
	}

	if e.SubscriptionID == "" {
		s.record(ctx, e.Meta, OutcomeIgnored).
			Str("invoice_id", e.InvoiceID).
			Msg("Invoice without subscription, nothing to extend")
		return nil
	}

	periodEnd, err := s.fetchPeriodEnd(ctx, e.SubscriptionID)
	if err != nil {
		return err
	}

	return s.apply(ctx, e.Meta, user, map[string]interface{}{
		"plan":                    model.PlanAdvanced,
		"plan_expiry":             periodEnd,
		"messages_used_today":     0,
		"billing_subscription_id": e.SubscriptionID,
	})
}

// PaymentFailed 扣款失败：不改账户，只发通知
func (s *ReconcilerService) PaymentFailed(ctx context.Context, e *billing.PaymentFailed) error {
	user, err := s.userRepo.GetByBillingCustomerID(ctx, e.CustomerID)
	if errors.Is(err, gorm.ErrRecordNotFound) && e.CustomerEmail != "" {
		user, err = s.userRepo.GetByEmail(ctx, normalizeEmail(e.CustomerEmail))
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.lookupMiss(ctx, e.Meta, e.CustomerID)
			return nil
		}
		return fmt.Errorf("find account by billing customer: %w", err)
	}

	if s.notifier == nil {
		s.record(ctx, e.Meta, OutcomeIgnored).Int64("user_id", user.ID).Msg("No notifier configured")
		return nil
	}

	notice := &dto.BillingNotice{
		Type:         dto.NoticePaymentFailed,
		EventID:      e.ID,
		UserID:       user.ID,
		Email:        e.CustomerEmail,
		Username:     user.Username,
		InvoiceID:    e.InvoiceID,
		AmountDue:    e.AmountDue,
		AttemptCount: e.AttemptCount,
		NextAttempt:  e.NextAttempt,
		CreatedAt:    s.eventTime(e.Meta),
	}
	if user.Email != nil {
		notice.Email = *user.Email
	}

	if err := s.notifier.NotifyPaymentFailed(ctx, notice); err != nil {
		s.record(ctx, e.Meta, OutcomeNotifyFailed).Err(err).Int64("user_id", user.ID).Msg("Failed to emit billing notice")
		return nil
	}

	s.record(ctx, e.Meta, OutcomeNotified).Int64("user_id", user.ID).Msg("Payment failure notice emitted")
	return nil
}

func (s *ReconcilerService) findByCustomer(ctx context.Context, meta billing.Meta, customerID string) (*model.User, bool, error) {
	if customerID == "" {
		s.lookupMiss(ctx, meta, "")
		return nil, false, nil
	}

	user, err := s.userRepo.GetByBillingCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.lookupMiss(ctx, meta, customerID)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find account by billing customer: %w", err)
	}
	return user, true, nil
}

func (s *ReconcilerService) fetchPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	if subscriptionID == "" || s.fetcher == nil {
		return time.Time{}, billing.ErrNoPeriodEnd
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Stripe.FetchTimeout())
	defer cancel()

	end, err := s.fetcher.CurrentPeriodEnd(fetchCtx, subscriptionID)
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch current period end: %w", err)
	}
	return end.UTC(), nil
}

// apply 条件写入；账户已记录更晚的事件时视为过期事件
func (s *ReconcilerService) apply(ctx context.Context, meta billing.Meta, user *model.User, fields map[string]interface{}) error {
	applied, err := s.userRepo.ApplyBillingEvent(ctx, user.ID, s.eventTime(meta), fields)
	if err != nil {
		return fmt.Errorf("update account %d: %w", user.ID, err)
	}

	if !applied {
		s.record(ctx, meta, OutcomeStale).Int64("user_id", user.ID).Msg("Ignoring billing event older than the account state")
		return nil
	}

	s.record(ctx, meta, OutcomeApplied).Int64("user_id", user.ID).Msg("Billing event applied")
	return nil
}

func (s *ReconcilerService) lookupMiss(ctx context.Context, meta billing.Meta, customer string) {
	s.record(ctx, meta, OutcomeLookupMiss).Str("customer", customer).Msg("No account matches billing event")
}

// record 记录指标并返回带事件字段的日志
func (s *ReconcilerService) record(ctx context.Context, meta billing.Meta, outcome string) *zerolog.Event {
	metrics.ReconcileOutcomes.WithLabelValues(meta.Type, outcome).Inc()

	logger := logging.FromContext(ctx)
	var ev *zerolog.Event
	switch outcome {
	case OutcomeApplied, OutcomeNotified:
		ev = logger.Info()
	case OutcomeError:
		ev = logger.Error()
	default:
		ev = logger.Warn()
	}
	return ev.Str("event_id", meta.ID).Str("type", meta.Type).Str("outcome", outcome)
}

func (s *ReconcilerService) eventTime(meta billing.Meta) time.Time {
	if meta.Created.IsZero() {
		return s.now()
	}
	return meta.Created.UTC()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
