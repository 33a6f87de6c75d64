package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/api/middleware"
	"github.com/qs3c/pixelchat_server/internal/billing"
	"github.com/qs3c/pixelchat_server/internal/pkg/llm"
	"github.com/qs3c/pixelchat_server/internal/pkg/response"
	"github.com/qs3c/pixelchat_server/internal/repository"
	"github.com/qs3c/pixelchat_server/internal/service"
	"github.com/qs3c/pixelchat_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret-key"

// testContext bundles the storage and services a handler test needs.
type testContext struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Mini     *miniredis.Miniredis
	Cfg      *config.Config
	LLM      *stubCompleter
	Provider *stubCheckoutProvider

	UserRepo *repository.UserRepository
	Quota    *service.QuotaService
	Plans    *service.PlanService
	Users    *service.UserService
	Auth     *service.AuthService
	Chat     *service.ChatService
	Promo    *service.PromoService
	Checkout *service.CheckoutService
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{Secret: testSecret, ExpireHours: 24, GuestExpireHours: 24},
		Stripe: config.StripeConfig{
			WebhookSecret:        "whsec_test_secret",
			PriceMonthly:         "price_month",
			PriceYearly:          "price_year",
			YearlyThresholdCents: 19990,
			FrontendURL:          "http://localhost:5173",
			FetchTimeoutSeconds:  1,
		},
		Quota: config.QuotaConfig{GuestDailyLimit: 2, EssentialDailyLimit: 3},
		Plans: map[string]config.PlanConfig{
			config.PlanEssential: {DisplayName: "Essential", Model: "small-model", HistoryDays: 7},
			config.PlanAdvanced:  {DisplayName: "Advanced", Model: "large-model"},
		},
		LLM: config.LLMConfig{GuestModel: "small-model"},
	}
}

func setupTestContext(t *testing.T) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	mr, rdb := testutil.SetupTestRedis(t)
	cfg := testConfig()

	tc := &testContext{
		DB:       db,
		Redis:    rdb,
		Mini:     mr,
		Cfg:      cfg,
		LLM:      &stubCompleter{reply: "hello from the model"},
		Provider: &stubCheckoutProvider{},
		UserRepo: repository.NewUserRepository(db),
	}
	tc.Quota = service.NewQuotaService(tc.UserRepo, rdb, cfg)
	tc.Plans = service.NewPlanService(cfg)
	tc.Users = service.NewUserService(tc.UserRepo, tc.Quota, tc.Plans)
	tc.Auth = service.NewAuthService(tc.UserRepo, tc.Quota, cfg)
	tc.Chat = service.NewChatService(repository.NewChatRepository(db), tc.Quota, tc.Plans, tc.LLM)
	tc.Promo = service.NewPromoService(repository.NewPromoRepository(db))
	tc.Checkout = service.NewCheckoutService(tc.Provider, cfg)

	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	return tc
}

type stubCompleter struct {
	reply string
	err   error
	calls []llm.ChatRequest
}

func (s *stubCompleter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{Content: s.reply, Model: req.Model}, nil
}

type stubCheckoutProvider struct {
	last *billing.CheckoutRequest
	fail bool
}

func (s *stubCheckoutProvider) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	if s.fail {
		return nil, errors.New("stripe down")
	}
	s.last = &req
	return &billing.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil
}

func (s *stubCheckoutProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if s.fail {
		return "", errors.New("stripe down")
	}
	return "https://portal.test/" + customerID, nil
}

func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func mockGuest(guestID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.GuestIDKey, guestID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "response data is not an object: %#v", resp.Data)
	return data
}
