package model

import (
	"time"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"not null;index:idx_chat_user_created" json:"-"`
	Role      string    `gorm:"size:20;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Model     string    `gorm:"size:100" json:"model,omitempty"`
	CreatedAt time.Time `gorm:"index:idx_chat_user_created" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
