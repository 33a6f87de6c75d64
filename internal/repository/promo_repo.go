package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/pixelchat_server/internal/model"
)

type PromoRepository struct {
	db *gorm.DB
}

func NewPromoRepository(db *gorm.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

// Transaction 在同一事务内执行兑换码与用户表的修改
func (r *PromoRepository) Transaction(ctx context.Context, fn func(promos *PromoRepository, users *UserRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PromoRepository{db: tx}, NewUserRepository(tx))
	})
}

func (r *PromoRepository) Create(ctx context.Context, promo *model.PromoCode) error {
	return r.db.WithContext(ctx).Create(promo).Error
}

func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	var promo model.PromoCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&promo).Error
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *PromoRepository) List(ctx context.Context) ([]model.PromoCode, error) {
	var promos []model.PromoCode
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&promos).Error
	return promos, err
}

// IncrementUses 以 observed 作为比较值更新使用次数，返回 false 表示被并发修改
func (r *PromoRepository) IncrementUses(ctx context.Context, id int64, observed int, stillActive bool) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.PromoCode{}).
		Where("id = ? AND current_uses = ?", id, observed).
		Updates(map[string]interface{}{
			"current_uses": observed + 1,
			"is_active":    stillActive,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *PromoRepository) CreateRedemption(ctx context.Context, redemption *model.PromoRedemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}

func (r *PromoRepository) CountRedemptions(ctx context.Context, promoID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.PromoRedemption{}).Where("promo_code_id = ?", promoID).Count(&count).Error
	return count, err
}
