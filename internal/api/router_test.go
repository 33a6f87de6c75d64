package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/api/handler"
	"github.com/qs3c/pixelchat_server/internal/pkg/jwt"
	"github.com/qs3c/pixelchat_server/internal/pkg/ledger"
	"github.com/qs3c/pixelchat_server/internal/pkg/oauth"
	"github.com/qs3c/pixelchat_server/internal/pkg/response"
	"github.com/qs3c/pixelchat_server/internal/pkg/ws"
	"github.com/qs3c/pixelchat_server/internal/repository"
	"github.com/qs3c/pixelchat_server/internal/service"
	"github.com/qs3c/pixelchat_server/internal/testutil"
)

const routerSecret = "router-secret"

func setupEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	_, rdb := testutil.SetupTestRedis(t)

	cfg := &config.Config{
		JWT:   config.JWTConfig{Secret: routerSecret, ExpireHours: 1, GuestExpireHours: 1},
		Quota: config.QuotaConfig{GuestDailyLimit: 1, EssentialDailyLimit: 2},
		Plans: map[string]config.PlanConfig{
			config.PlanEssential: {DisplayName: "Essential", Model: "small"},
			config.PlanAdvanced:  {DisplayName: "Advanced", Model: "large"},
		},
		Stripe: config.StripeConfig{WebhookSecret: "whsec_router", YearlyThresholdCents: 19990},
	}

	userRepo := repository.NewUserRepository(db)
	quota := service.NewQuotaService(userRepo, rdb, cfg)
	plans := service.NewPlanService(cfg)
	users := service.NewUserService(userRepo, quota, plans)
	chat := service.NewChatService(repository.NewChatRepository(db), quota, plans, nil)
	promo := service.NewPromoService(repository.NewPromoRepository(db))
	checkout := service.NewCheckoutService(nil, cfg)
	reconciler := service.NewReconcilerService(userRepo, nil, nil, cfg)

	r := NewRouter(
		handler.NewAuthHandler(service.NewAuthService(userRepo, quota, cfg), oauth.NewStateStore(rdb), ""),
		handler.NewUserHandler(users, quota),
		handler.NewPlansHandler(plans, users),
		handler.NewChatHandler(chat, users, quota),
		handler.NewBillingHandler(checkout, promo, users),
		handler.NewWebhookHandler(cfg.Stripe.WebhookSecret, reconciler, ledger.New(rdb, time.Hour)),
		handler.NewWebSocketHandler(ws.NewHub(), routerSecret, nil),
		cfg,
	)
	return r.Setup()
}

func get(engine http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func envelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRouter_Infrastructure(t *testing.T) {
	engine := setupEngine(t)

	w := get(engine, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(engine, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestRouter_WebhookRejectsGet(t *testing.T) {
	engine := setupEngine(t)

	w := get(engine, "/api/v1/billing/webhook", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouter_PublicPlans(t *testing.T) {
	engine := setupEngine(t)

	w := get(engine, "/api/v1/plans", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, envelope(t, w).Code)
}

func TestRouter_AuthGroups(t *testing.T) {
	engine := setupEngine(t)

	guestToken, err := jwt.GenerateGuestToken("guest-1", routerSecret, 1)
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		token string
		code  int
	}{
		{"profile without token", "/api/v1/user/profile", "", response.CodeAuthFailed},
		{"guest cannot read history", "/api/v1/chat/history", guestToken, response.CodeAuthFailed},
		{"guest can read quota", "/api/v1/user/quota", guestToken, response.CodeSuccess},
		{"quota without token", "/api/v1/user/quota", "", response.CodeAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(engine, tt.path, tt.token)
			assert.Equal(t, tt.code, envelope(t, w).Code)
		})
	}
}

func TestRouter_UserProfile(t *testing.T) {
	engine := setupEngine(t)

	token, err := jwt.GenerateToken(42, routerSecret, 1)
	require.NoError(t, err)

	// no such user in the store
	w := get(engine, "/api/v1/user/profile", token)
	assert.Equal(t, response.CodeResourceNotFound, envelope(t, w).Code)
}
