package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/pkg/metrics"
)

const popTimeout = 5 * time.Second

var ErrNoRecipient = errors.New("notice has no recipient email")

// NoticeSource 通知队列
type NoticeSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*dto.BillingNotice, error)
	Length(ctx context.Context) (int64, error)
}

// Mailer 通知邮件发送
type Mailer interface {
	SendPaymentFailed(notice *dto.BillingNotice) error
}

// Processor 从队列取出账单通知并发送邮件
type Processor struct {
	source NoticeSource
	mailer Mailer
}

func NewProcessor(source NoticeSource, mailer Mailer) *Processor {
	return &Processor{source: source, mailer: mailer}
}

// Process 处理单条通知，发送失败只记录日志
func (p *Processor) Process(ctx context.Context, notice *dto.BillingNotice) error {
	logger := log.With().
		Str("type", notice.Type).
		Str("event_id", notice.EventID).
		Int64("user_id", notice.UserID).
		Logger()

	var err error
	switch notice.Type {
	case dto.NoticePaymentFailed:
		if notice.Email == "" {
			err = ErrNoRecipient
		} else {
			err = p.mailer.SendPaymentFailed(notice)
		}
	default:
		err = fmt.Errorf("unknown notice type %q", notice.Type)
	}

	if err != nil {
		metrics.NoticeDeliveries.WithLabelValues(notice.Type, "failed").Inc()
		logger.Warn().Err(err).Msg("Billing notice delivery failed")
		return err
	}

	metrics.NoticeDeliveries.WithLabelValues(notice.Type, "sent").Inc()
	logger.Info().Str("invoice_id", notice.InvoiceID).Msg("Billing notice delivered")
	return nil
}

// Backlog 队列中待发送的通知数
func (p *Processor) Backlog(ctx context.Context) (int64, error) {
	return p.source.Length(ctx)
}

// Run 启动 workers 个消费协程，直到 ctx 取消
func (p *Processor) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	if backlog, err := p.Backlog(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to read notice backlog")
	} else {
		log.Info().Int64("backlog", backlog).Int("workers", workers).Msg("Notice workers starting")
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			p.loop(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Processor) loop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			log.Debug().Int("worker", workerID).Msg("Notice worker shutting down")
			return
		}

		notice, err := p.source.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Int("worker", workerID).Msg("Failed to pop notice")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if notice == nil {
			continue // 超时，继续等待
		}

		_ = p.Process(ctx, notice)
	}
}
