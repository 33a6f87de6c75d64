package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/pixelchat_server/internal/model"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
	"github.com/qs3c/pixelchat_server/internal/pkg/metrics"
	"github.com/qs3c/pixelchat_server/internal/repository"
)

var (
	ErrInvalidCode   = errors.New("兑换码无效")
	ErrExhaustedCode = errors.New("兑换码已被用完")
	ErrPromoBusy     = errors.New("兑换码正被其他用户使用，请稍后重试")
)

const (
	defaultGrantDays  = 30
	maxRedeemAttempts = 3
)

var errPromoConflict = errors.New("promo code changed concurrently")

type PromoService struct {
	promoRepo *repository.PromoRepository
	now       func() time.Time
}

func NewPromoService(promoRepo *repository.PromoRepository) *PromoService {
	return &PromoService{
		promoRepo: promoRepo,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeCode 兑换码统一为大写
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Redeem 兑换：在一个事务里占用次数、写兑换记录并开通 advanced，返回到期时间
func (s *PromoService) Redeem(ctx context.Context, code string, userID int64) (time.Time, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		metrics.PromoRedemptions.WithLabelValues("invalid").Inc()
		return time.Time{}, ErrInvalidCode
	}

	var (
		grantedUntil time.Time
		err          error
	)
	for attempt := 1; attempt <= maxRedeemAttempts; attempt++ {
		grantedUntil, err = s.redeemOnce(ctx, normalized, userID)
		if !errors.Is(err, errPromoConflict) {
			break
		}
		logging.FromContext(ctx).Debug().Str("code", normalized).Int("attempt", attempt).Msg("Promo redemption raced, retrying")
	}

	switch {
	case err == nil:
		metrics.PromoRedemptions.WithLabelValues("redeemed").Inc()
		logging.FromContext(ctx).Info().
			Str("code", normalized).
			Int64("user_id", userID).
			Time("granted_until", grantedUntil).
			Msg("Promo code redeemed")
		return grantedUntil, nil
	case errors.Is(err, ErrInvalidCode):
		metrics.PromoRedemptions.WithLabelValues("invalid").Inc()
	case errors.Is(err, ErrExhaustedCode):
		metrics.PromoRedemptions.WithLabelValues("exhausted").Inc()
	case errors.Is(err, errPromoConflict):
		metrics.PromoRedemptions.WithLabelValues("conflict").Inc()
		return time.Time{}, ErrPromoBusy
	default:
		metrics.PromoRedemptions.WithLabelValues("error").Inc()
	}
	return time.Time{}, err
}

func (s *PromoService) redeemOnce(ctx context.Context, code string, userID int64) (time.Time, error) {
	var grantedUntil time.Time

	err := s.promoRepo.Transaction(ctx, func(promos *repository.PromoRepository, users *repository.UserRepository) error {
		promo, err := promos.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidCode
			}
			return err
		}

		// 用完的码也会被停用，先判断次数才能给出准确的原因
		if promo.CurrentUses >= promo.MaxUses {
			return ErrExhaustedCode
		}
		if !promo.IsActive {
			return ErrInvalidCode
		}

		ok, err := promos.IncrementUses(ctx, promo.ID, promo.CurrentUses, promo.CurrentUses+1 < promo.MaxUses)
		if err != nil {
			return err
		}
		if !ok {
			return errPromoConflict
		}

		days := promo.GrantDays
		if days <= 0 {
			days = defaultGrantDays
		}
		now := s.now()
		grantedUntil = now.AddDate(0, 0, days)

		if err := promos.CreateRedemption(ctx, &model.PromoRedemption{
			PromoCodeID:  promo.ID,
			UserID:       userID,
			GrantedUntil: grantedUntil,
			RedeemedAt:   now,
		}); err != nil {
			return fmt.Errorf("record redemption: %w", err)
		}

		rows, err := users.UpdateFields(ctx, userID, map[string]interface{}{
			"plan":        model.PlanAdvanced,
			"plan_expiry": grantedUntil,
		})
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return grantedUntil, nil
}

// Create 创建兑换码（管理命令使用）
func (s *PromoService) Create(ctx context.Context, code string, maxUses, grantDays int) (*model.PromoCode, error) {
	normalized := NormalizeCode(code)
	if normalized == "" || maxUses <= 0 || grantDays < 0 {
		return nil, ErrInvalidCode
	}

	promo := &model.PromoCode{
		Code:      normalized,
		MaxUses:   maxUses,
		GrantDays: grantDays,
		IsActive:  true,
	}
	if err := s.promoRepo.Create(ctx, promo); err != nil {
		return nil, err
	}
	return promo, nil
}

// List 列出兑换码
func (s *PromoService) List(ctx context.Context) ([]model.PromoCode, error) {
	return s.promoRepo.List(ctx)
}

// RedemptionCount 兑换记录条数，用于核对 current_uses
func (s *PromoService) RedemptionCount(ctx context.Context, promoID int64) (int64, error) {
	return s.promoRepo.CountRedemptions(ctx, promoID)
}
