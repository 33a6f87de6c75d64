package dto

// ChatTurn 对话中的一轮
type ChatTurn struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// SendMessageRequest 发送消息；History 仅游客使用，登录用户从服务端读取历史
type SendMessageRequest struct {
	Content string     `json:"content" binding:"required,max=4000"`
	History []ChatTurn `json:"history,omitempty" binding:"omitempty,max=40,dive"`
}

// SendMessageResponse 模型回复及剩余配额
type SendMessageResponse struct {
	Reply string     `json:"reply"`
	Model string     `json:"model"`
	Quota *QuotaInfo `json:"quota"`
}

// ChatMessageInfo 历史消息
type ChatMessageInfo struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ChatHistoryResponse 历史消息列表
type ChatHistoryResponse struct {
	Messages    []ChatMessageInfo `json:"messages"`
	HistoryDays *int              `json:"history_days"`
}
