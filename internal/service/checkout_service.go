package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/billing"
	"github.com/qs3c/pixelchat_server/internal/model"
	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
)

var (
	ErrBillingUnavailable = errors.New("支付服务暂不可用")
	ErrNoBillingAccount   = errors.New("尚未开通付费订阅")
	ErrEmailRequired      = errors.New("请先绑定邮箱再订阅")
	ErrInvalidInterval    = errors.New("订阅周期无效")
)

// CheckoutProvider 支付平台的结账与门户接口
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

type CheckoutService struct {
	provider CheckoutProvider
	cfg      *config.Config
}

func NewCheckoutService(provider CheckoutProvider, cfg *config.Config) *CheckoutService {
	return &CheckoutService{provider: provider, cfg: cfg}
}

// Checkout 创建订阅结账会话
func (s *CheckoutService) Checkout(ctx context.Context, user *model.User, interval string) (*dto.CheckoutResponse, error) {
	if s.provider == nil {
		return nil, ErrBillingUnavailable
	}
	iv := billing.ParseInterval(interval)

	var priceID string
	switch iv {
	case billing.IntervalMonth:
		priceID = s.cfg.Stripe.PriceMonthly
	case billing.IntervalYear:
		priceID = s.cfg.Stripe.PriceYearly
	default:
		return nil, ErrInvalidInterval
	}
	if priceID == "" {
		return nil, ErrBillingUnavailable
	}

	// 首次购买按邮箱匹配账户
	if user.Email == nil || *user.Email == "" {
		return nil, ErrEmailRequired
	}

	req := billing.CheckoutRequest{
		UserID:     user.ID,
		Email:      *user.Email,
		PriceID:    priceID,
		Interval:   iv,
		SuccessURL: s.frontendURL("/chat?checkout=success&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  s.frontendURL("/pricing?checkout=cancel"),
	}
	if user.BillingCustomerID != nil {
		req.CustomerID = *user.BillingCustomerID
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		logging.FromContext(ctx).Error().Err(err).Int64("user_id", user.ID).Msg("Failed to create checkout session")
		return nil, fmt.Errorf("%w: %v", ErrBillingUnavailable, err)
	}

	return &dto.CheckoutResponse{SessionID: sess.ID, URL: sess.URL}, nil
}

// Portal 创建账单管理门户会话
func (s *CheckoutService) Portal(ctx context.Context, user *model.User) (*dto.PortalResponse, error) {
	if s.provider == nil {
		return nil, ErrBillingUnavailable
	}
	if user.BillingCustomerID == nil || *user.BillingCustomerID == "" {
		return nil, ErrNoBillingAccount
	}

	url, err := s.provider.CreatePortalSession(ctx, *user.BillingCustomerID, s.frontendURL("/account"))
	if err != nil {
		logging.FromContext(ctx).Error().Err(err).Int64("user_id", user.ID).Msg("Failed to create portal session")
		return nil, fmt.Errorf("%w: %v", ErrBillingUnavailable, err)
	}

	return &dto.PortalResponse{URL: url}, nil
}

func (s *CheckoutService) frontendURL(path string) string {
	return strings.TrimRight(s.cfg.Stripe.FrontendURL, "/") + path
}
