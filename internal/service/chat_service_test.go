package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/pixelchat_server/internal/model"
	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/pkg/llm"
	"github.com/qs3c/pixelchat_server/internal/repository"
	"github.com/qs3c/pixelchat_server/internal/testutil"
)

type fakeLLM struct {
	requests []llm.ChatRequest
	reply    string
	err      error
}

func (f *fakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.reply}, nil
}

func setupChatService(t *testing.T) (*ChatService, *fakeLLM, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	_, rdb := testutil.SetupTestRedis(t)

	cfg := testConfig()
	quotaSvc := NewQuotaService(repository.NewUserRepository(db), rdb, cfg)
	quotaSvc.now = fixedClock(testNow)

	completer := &fakeLLM{reply: "hello there"}
	svc := NewChatService(repository.NewChatRepository(db), quotaSvc, NewPlanService(cfg), completer)
	return svc, completer, db
}

func TestChatService_SendForUser(t *testing.T) {
	svc, completer, db := setupChatService(t)
	user := testutil.TestUser(t, db)

	// Older than the 7 day window for essential
	testutil.TestChatMessage(t, db, user.ID, model.RoleUser, "ancient", testNow.AddDate(0, 0, -8))
	testutil.TestChatMessage(t, db, user.ID, model.RoleUser, "recent question", testNow.Add(-time.Hour))
	testutil.TestChatMessage(t, db, user.ID, model.RoleAssistant, "recent answer", testNow.Add(-time.Hour+time.Second))

	resp, err := svc.SendForUser(context.Background(), user, &dto.SendMessageRequest{Content: "new question"})
	require.NoError(t, err)

	assert.Equal(t, "hello there", resp.Reply)
	assert.Equal(t, "llama-3.1-8b-instant", resp.Model)
	assert.Equal(t, 49, *resp.Quota.Remaining)

	require.Len(t, completer.requests, 1)
	req := completer.requests[0]
	assert.Equal(t, "llama-3.1-8b-instant", req.Model)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "recent question", req.Messages[0].Content)
	assert.Equal(t, "recent answer", req.Messages[1].Content)
	assert.Equal(t, llm.Message{Role: "user", Content: "new question"}, req.Messages[2])

	var count int64
	require.NoError(t, db.Model(&model.ChatMessage{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(5), count)
}

func TestChatService_SendForUser_AdvancedModel(t *testing.T) {
	svc, completer, db := setupChatService(t)
	expiry := testNow.AddDate(0, 1, 0)
	user := testutil.TestUser(t, db, testutil.WithPlan(model.PlanAdvanced, &expiry))
	testutil.TestChatMessage(t, db, user.ID, model.RoleUser, "ancient", testNow.AddDate(0, 0, -30))

	resp, err := svc.SendForUser(context.Background(), user, &dto.SendMessageRequest{Content: "hi"})
	require.NoError(t, err)

	assert.True(t, resp.Quota.Unlimited)
	assert.Equal(t, "llama-3.3-70b-versatile", completer.requests[0].Model)
	// Unlimited history includes old messages
	assert.Len(t, completer.requests[0].Messages, 2)
}

func TestChatService_SendForUser_QuotaExceeded(t *testing.T) {
	svc, completer, db := setupChatService(t)
	user := testutil.TestUser(t, db, testutil.WithMessagesUsed(50, testNow.Add(-time.Hour)))

	_, err := svc.SendForUser(context.Background(), user, &dto.SendMessageRequest{Content: "one more"})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Empty(t, completer.requests)
}

func TestChatService_SendForUser_LLMFailureKeepsQuotaSpent(t *testing.T) {
	svc, completer, db := setupChatService(t)
	completer.err = errors.New("upstream 503")
	user := testutil.TestUser(t, db)

	_, err := svc.SendForUser(context.Background(), user, &dto.SendMessageRequest{Content: "hello"})
	assert.ErrorIs(t, err, ErrLLMUnavailable)

	var stored model.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Equal(t, 1, stored.MessagesUsedToday)
}

func TestChatService_SendForGuest(t *testing.T) {
	svc, completer, _ := setupChatService(t)

	history := make([]dto.ChatTurn, 0, 30)
	for i := 0; i < 30; i++ {
		history = append(history, dto.ChatTurn{Role: model.RoleUser, Content: "turn"})
	}

	resp, err := svc.SendForGuest(context.Background(), "guest-chat", &dto.SendMessageRequest{Content: "hey", History: history})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Reply)
	assert.Equal(t, "guest", resp.Quota.Class)
	assert.Equal(t, 9, *resp.Quota.Remaining)

	require.Len(t, completer.requests, 1)
	assert.Len(t, completer.requests[0].Messages, 21)
	assert.Equal(t, "llama-3.1-8b-instant", completer.requests[0].Model)
}

func TestChatService_SendForGuest_QuotaExceeded(t *testing.T) {
	svc, completer, _ := setupChatService(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := svc.SendForGuest(ctx, "guest-full", &dto.SendMessageRequest{Content: "x"})
		require.NoError(t, err)
	}

	_, err := svc.SendForGuest(ctx, "guest-full", &dto.SendMessageRequest{Content: "x"})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Len(t, completer.requests, 10)
}

func TestChatService_History(t *testing.T) {
	svc, _, db := setupChatService(t)
	user := testutil.TestUser(t, db)
	testutil.TestChatMessage(t, db, user.ID, model.RoleUser, "too old", testNow.AddDate(0, 0, -10))
	testutil.TestChatMessage(t, db, user.ID, model.RoleUser, "first", testNow.Add(-2*time.Hour))
	testutil.TestChatMessage(t, db, user.ID, model.RoleAssistant, "second", testNow.Add(-time.Hour))

	resp, err := svc.History(context.Background(), user)
	require.NoError(t, err)

	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "first", resp.Messages[0].Content)
	assert.Equal(t, "second", resp.Messages[1].Content)
	assert.Equal(t, 7, *resp.HistoryDays)
}
