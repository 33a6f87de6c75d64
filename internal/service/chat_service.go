package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qs3c/pixelchat_server/internal/model"
	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/pkg/llm"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
	"github.com/qs3c/pixelchat_server/internal/repository"
)

var ErrLLMUnavailable = errors.New("AI 服务暂不可用，请稍后重试")

const (
	contextTurns = 20  // 发给模型的历史条数
	historyLimit = 200 // 历史接口返回条数
)

// ChatCompleter 大模型对话接口
type ChatCompleter interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

type ChatService struct {
	chatRepo *repository.ChatRepository
	quotaSvc *QuotaService
	planSvc  *PlanService
	llm      ChatCompleter
}

func NewChatService(chatRepo *repository.ChatRepository, quotaSvc *QuotaService, planSvc *PlanService, completer ChatCompleter) *ChatService {
	return &ChatService{
		chatRepo: chatRepo,
		quotaSvc: quotaSvc,
		planSvc:  planSvc,
		llm:      completer,
	}
}

// SendForUser 登录用户发送消息：先扣额度，再调用模型，两轮消息都入库
func (s *ChatService) SendForUser(ctx context.Context, user *model.User, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error) {
	if _, err := s.quotaSvc.RecordSent(ctx, user); err != nil {
		return nil, err
	}

	now := s.quotaSvc.now()
	plan := user.EffectivePlan(now)
	modelName := s.planSvc.ModelFor(plan)

	history, err := s.chatRepo.ListRecent(ctx, user.ID, s.planSvc.HistorySince(plan, now), contextTurns)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	userMsg := &model.ChatMessage{UserID: user.ID, Role: model.RoleUser, Content: req.Content, CreatedAt: now}
	if err := s.chatRepo.Create(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: model.RoleUser, Content: req.Content})

	reply, err := s.complete(ctx, modelName, messages)
	if err != nil {
		return nil, err
	}

	assistantMsg := &model.ChatMessage{
		UserID:    user.ID,
		Role:      model.RoleAssistant,
		Content:   reply.Content,
		Model:     reply.Model,
		CreatedAt: s.quotaSvc.now(),
	}
	if err := s.chatRepo.Create(ctx, assistantMsg); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to save assistant reply")
	}

	return &dto.SendMessageResponse{
		Reply: reply.Content,
		Model: reply.Model,
		Quota: s.quotaSvc.GetQuotaInfo(user),
	}, nil
}

// SendForGuest 游客发送消息，历史由客户端携带且不入库
func (s *ChatService) SendForGuest(ctx context.Context, guestID string, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error) {
	if _, err := s.quotaSvc.RecordGuestSent(ctx, guestID); err != nil {
		return nil, err
	}

	turns := req.History
	if len(turns) > contextTurns {
		turns = turns[len(turns)-contextTurns:]
	}
	messages := make([]llm.Message, 0, len(turns)+1)
	for _, t := range turns {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: model.RoleUser, Content: req.Content})

	reply, err := s.complete(ctx, s.planSvc.GuestModel(), messages)
	if err != nil {
		return nil, err
	}

	quota, err := s.quotaSvc.GetGuestQuotaInfo(ctx, guestID)
	if err != nil {
		return nil, err
	}

	return &dto.SendMessageResponse{Reply: reply.Content, Model: reply.Model, Quota: quota}, nil
}

// History 套餐可见范围内的历史消息
func (s *ChatService) History(ctx context.Context, user *model.User) (*dto.ChatHistoryResponse, error) {
	now := s.quotaSvc.now()
	plan := user.EffectivePlan(now)

	messages, err := s.chatRepo.ListRecent(ctx, user.ID, s.planSvc.HistorySince(plan, now), historyLimit)
	if err != nil {
		return nil, err
	}

	resp := &dto.ChatHistoryResponse{
		Messages:    make([]dto.ChatMessageInfo, 0, len(messages)),
		HistoryDays: s.planSvc.Info(plan).HistoryDays,
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, dto.ChatMessageInfo{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp, nil
}

// complete 调用模型；失败不退还额度
func (s *ChatService) complete(ctx context.Context, modelName string, messages []llm.Message) (*llm.ChatResponse, error) {
	reply, err := s.llm.Chat(ctx, llm.ChatRequest{Model: modelName, Messages: messages})
	if err != nil {
		logging.FromContext(ctx).Error().Err(err).Str("model", modelName).Msg("LLM request failed")
		return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}
	if reply.Model == "" {
		reply.Model = modelName
	}
	return reply, nil
}
