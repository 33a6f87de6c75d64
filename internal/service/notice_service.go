package service

import (
	"context"
	"fmt"

	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
	"github.com/qs3c/pixelchat_server/internal/pkg/pubsub"
	"github.com/qs3c/pixelchat_server/internal/pkg/queue"
)

// NoticeService 账单通知：入队交给邮件进程，同时广播给在线页面
type NoticeService struct {
	queue     *queue.Queue
	publisher *pubsub.Publisher
}

func NewNoticeService(q *queue.Queue, publisher *pubsub.Publisher) *NoticeService {
	return &NoticeService{queue: q, publisher: publisher}
}

// NotifyPaymentFailed 入队失败返回错误；广播失败只记日志
func (s *NoticeService) NotifyPaymentFailed(ctx context.Context, notice *dto.BillingNotice) error {
	if err := s.queue.Push(ctx, notice); err != nil {
		return fmt.Errorf("enqueue billing notice: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishNotice(ctx, notice); err != nil {
			logging.FromContext(ctx).Warn().Err(err).
				Str("event_id", notice.EventID).
				Msg("Failed to publish billing notice")
		}
	}
	return nil
}
