package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/pixelchat_server/internal/model"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, messages ...*model.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(messages).Error
}

// ListRecent 返回 since 之后最近的 limit 条消息，按时间正序；since 为空表示不限时间
func (r *ChatRepository) ListRecent(ctx context.Context, userID int64, since *time.Time, limit int) ([]model.ChatMessage, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}

	var messages []model.ChatMessage
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
