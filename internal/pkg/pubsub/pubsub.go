package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/pixelchat_server/internal/model/dto"
)

const (
	ChannelBillingNotices = "billing_notices"
)

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishNotice 发布账单通知
func (p *Publisher) PublishNotice(ctx context.Context, notice *dto.BillingNotice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal billing notice: %w", err)
	}

	return p.client.Publish(ctx, ChannelBillingNotices, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅账单通知，直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*dto.BillingNotice)) error {
	sub := s.client.Subscribe(ctx, ChannelBillingNotices)
	defer sub.Close()

	// 等待订阅确认，确保之后发布的消息不会丢失
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var notice dto.BillingNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				log.Warn().Err(err).Msg("Dropping undecodable billing notice")
				continue
			}

			handler(&notice)
		}
	}
}
