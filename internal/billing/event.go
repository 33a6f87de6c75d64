package billing

import (
	"context"
	"time"
)

// 支付平台事件类型
const (
	TypeCheckoutCompleted    = "checkout.session.completed"
	TypeSubscriptionUpdated  = "customer.subscription.updated"
	TypeSubscriptionCanceled = "customer.subscription.deleted"
	TypePaymentSucceeded     = "invoice.payment_succeeded"
	TypePaymentFailed        = "invoice.payment_failed"
)

// Interval 订阅周期
type Interval string

const (
	IntervalUnknown Interval = ""
	IntervalMonth   Interval = "month"
	IntervalYear    Interval = "year"
)

// ParseInterval 解析 month/year，其他值返回 IntervalUnknown
func ParseInterval(s string) Interval {
	switch Interval(s) {
	case IntervalMonth, IntervalYear:
		return Interval(s)
	default:
		return IntervalUnknown
	}
}

// Event 已验签的账单事件。具体类型只能是本包定义的五种之一
type Event interface {
	EventMeta() Meta
	Accept(ctx context.Context, h Handler) error
}

// Handler 每种事件一个方法；新增事件类型时所有实现都必须补上对应方法
type Handler interface {
	CheckoutCompleted(ctx context.Context, e *CheckoutCompleted) error
	SubscriptionUpdated(ctx context.Context, e *SubscriptionUpdated) error
	SubscriptionCanceled(ctx context.Context, e *SubscriptionCanceled) error
	PaymentSucceeded(ctx context.Context, e *PaymentSucceeded) error
	PaymentFailed(ctx context.Context, e *PaymentFailed) error
}

// Meta 事件公共字段
type Meta struct {
	ID      string
	Type    string
	Created time.Time
}

// CheckoutCompleted 首次购买完成
type CheckoutCompleted struct {
	Meta
	CustomerEmail  string
	CustomerID     string
	SubscriptionID string
	AmountTotal    int64
	Interval       Interval
}

// SubscriptionUpdated 订阅状态变更
type SubscriptionUpdated struct {
	Meta
	CustomerID       string
	SubscriptionID   string
	Status           string
	CurrentPeriodEnd time.Time
}

// SubscriptionCanceled 订阅终止
type SubscriptionCanceled struct {
	Meta
	CustomerID     string
	SubscriptionID string
}

// PaymentSucceeded 续费账单支付成功
type PaymentSucceeded struct {
	Meta
	CustomerID     string
	SubscriptionID string
	InvoiceID      string
}

// PaymentFailed 续费账单支付失败
type PaymentFailed struct {
	Meta
	CustomerID     string
	CustomerEmail  string
	SubscriptionID string
	InvoiceID      string
	AmountDue      int64
	AttemptCount   int64
	NextAttempt    *time.Time
}

func (m Meta) EventMeta() Meta { return m }

func (e *CheckoutCompleted) Accept(ctx context.Context, h Handler) error {
	return h.CheckoutCompleted(ctx, e)
}

func (e *SubscriptionUpdated) Accept(ctx context.Context, h Handler) error {
	return h.SubscriptionUpdated(ctx, e)
}

func (e *SubscriptionCanceled) Accept(ctx context.Context, h Handler) error {
	return h.SubscriptionCanceled(ctx, e)
}

func (e *PaymentSucceeded) Accept(ctx context.Context, h Handler) error {
	return h.PaymentSucceeded(ctx, e)
}

func (e *PaymentFailed) Accept(ctx context.Context, h Handler) error {
	return h.PaymentFailed(ctx, e)
}
