package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/pixelchat_server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByGithubID(ctx context.Context, githubID string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("github_id = ?", githubID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByBillingCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("billing_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields)
	return result.RowsAffected, result.Error
}

// ApplyBillingEvent 仅当账户记录的事件时间不晚于 eventAt 时写入 fields，
// 返回是否生效
func (r *UserRepository) ApplyBillingEvent(ctx context.Context, id int64, eventAt time.Time, fields map[string]interface{}) (bool, error) {
	fields["billing_event_at"] = eventAt
	result := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Where("billing_event_at IS NULL OR billing_event_at <= ?", eventAt).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RecordMessage 原子地累加当日消息计数。日期跨天时从 1 重新计数；
// limit < 0 表示不限。返回 false 表示已达上限，计数未变
func (r *UserRepository) RecordMessage(ctx context.Context, id int64, now time.Time, limit int) (bool, error) {
	dayStart := startOfDay(now)

	// messages_used_today 必须在 last_message_date 之前赋值（MySQL 按顺序求值）
	sql := `UPDATE users SET
		messages_used_today = CASE WHEN last_message_date IS NULL OR last_message_date < ? THEN 1 ELSE messages_used_today + 1 END,
		last_message_date = ?,
		updated_at = ?
		WHERE id = ?`
	args := []interface{}{dayStart, now, now, id}
	if limit >= 0 {
		sql += ` AND (last_message_date IS NULL OR last_message_date < ? OR messages_used_today < ?)`
		args = append(args, dayStart, limit)
	}

	result := r.db.WithContext(ctx).Exec(sql, args...)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DowngradeLapsed 将已过期的 advanced 套餐降级为 essential
func (r *UserRepository) DowngradeLapsed(ctx context.Context, id int64, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND plan = ? AND plan_expiry IS NOT NULL AND plan_expiry <= ?", id, model.PlanAdvanced, now).
		Updates(map[string]interface{}{
			"plan":        model.PlanEssential,
			"plan_expiry": nil,
		}).Error
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
