package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
)

var ErrNoPeriodEnd = errors.New("subscription has no current period end")

// CheckoutRequest 创建订阅结账会话的参数
type CheckoutRequest struct {
	UserID     int64
	Email      string
	CustomerID string // 已有客户时复用，否则按邮箱新建
	PriceID    string
	Interval   Interval
	SuccessURL string
	CancelURL  string
}

// CheckoutSession 结账会话
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Client Stripe API 的薄封装，调用函数可在测试中替换
type Client struct {
	getSubscription       func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	createPortalSession   func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

func NewClient(secretKey string) *Client {
	stripe.Key = secretKey
	return &Client{
		getSubscription:       subscription.Get,
		createCheckoutSession: stripesession.New,
		createPortalSession:   portalsession.New,
	}
}

// CurrentPeriodEnd 查询订阅当前周期的结束时间，受 ctx 超时控制
func (c *Client) CurrentPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.getSubscription(subscriptionID, params)
	if err != nil {
		return time.Time{}, fmt.Errorf("retrieve subscription %s: %w", subscriptionID, err)
	}

	var end int64
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
		}
	}
	if end == 0 {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoPeriodEnd, subscriptionID)
	}
	return time.Unix(end, 0).UTC(), nil
}

// CreateCheckoutSession 创建订阅模式的结账会话，metadata 写入用户与周期
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	metadata := map[string]string{
		MetadataUserID:       strconv.FormatInt(req.UserID, 10),
		MetadataPlanInterval: string(req.Interval),
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(strconv.FormatInt(req.UserID, 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx

	sess, err := c.createCheckoutSession(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePortalSession 创建账单管理门户会话，返回跳转地址
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := c.createPortalSession(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}
