package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/qs3c/pixelchat_server/internal/billing"
	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/pkg/ledger"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
	"github.com/qs3c/pixelchat_server/internal/pkg/metrics"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// EventReconciler 将账单事件落到账户上
type EventReconciler interface {
	Reconcile(ctx context.Context, event billing.Event) error
}

// WebhookHandler 处理 Stripe webhook。
// 该接口直接使用 HTTP 状态码，Stripe 依据状态码决定是否重试。
type WebhookHandler struct {
	secret     string
	reconciler EventReconciler
	ledger     *ledger.Ledger
}

func NewWebhookHandler(secret string, reconciler EventReconciler, l *ledger.Ledger) *WebhookHandler {
	return &WebhookHandler{
		secret:     secret,
		reconciler: reconciler,
		ledger:     l,
	}
}

// Handle 验签、解析并对账
// POST /api/v1/billing/webhook
func (h *WebhookHandler) Handle(c *gin.Context) {
	start := time.Now()
	eventType := "unknown"
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()
	logger := logging.FromContext(c.Request.Context())

	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook secret not configured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		webhookError(c, "failed to read request body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logger.Warn().Err(err).Msg("Rejected webhook with invalid signature")
		webhookError(c, err.Error())
		return
	}
	eventType = string(event.Type)
	ack := dto.WebhookAck{Received: true, Type: eventType}

	evt, err := billing.Decode(&event)
	switch {
	case errors.Is(err, billing.ErrUnhandledType):
		logger.Debug().Str("event_id", event.ID).Str("type", eventType).Msg("Webhook ignored (unhandled type)")
		c.JSON(http.StatusOK, ack)
		return
	case errors.Is(err, billing.ErrMalformedPayload):
		// 重试也无法修复，确认接收并记录
		logger.Error().Err(err).Str("event_id", event.ID).Str("type", eventType).Msg("Malformed webhook payload")
		c.JSON(http.StatusOK, ack)
		return
	case err != nil:
		logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to decode webhook event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "decode failed"})
		return
	}

	duplicate, err := h.ledger.Do(c.Request.Context(), event.ID, func() error {
		return h.reconciler.Reconcile(c.Request.Context(), evt)
	})
	if errors.Is(err, ledger.ErrInFlight) {
		c.JSON(http.StatusConflict, gin.H{"error": "event is being processed"})
		return
	}
	if err != nil {
		logger.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", eventType).
			Msg("Billing webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	ack.Duplicate = duplicate
	c.JSON(http.StatusOK, ack)
}

func webhookError(c *gin.Context, reason string) {
	c.String(http.StatusBadRequest, "Webhook Error: %s", reason)
}
