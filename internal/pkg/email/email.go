package email

import (
	"fmt"
	"html"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/model/dto"
)

type Service struct {
	cfg    *config.EmailConfig
	sender gomail.Sender
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg}
}

// NewServiceWithSender 使用自定义发送通道（测试或复用长连接）
func NewServiceWithSender(cfg *config.EmailConfig, sender gomail.Sender) *Service {
	return &Service{cfg: cfg, sender: sender}
}

// SendPaymentFailed 发送扣款失败提醒
func (s *Service) SendPaymentFailed(notice *dto.BillingNotice) error {
	if notice.Email == "" {
		return fmt.Errorf("notice %s has no recipient", notice.EventID)
	}

	subject := "扣款失败提醒 - PixelChat"
	return s.sendHTML(notice.Email, subject, paymentFailedBody(notice))
}

// paymentFailedBody 用户名与账单编号来自用户或支付平台，写入前需转义
func paymentFailedBody(notice *dto.BillingNotice) string {
	name := notice.Username
	if name == "" {
		name = notice.Email
	}

	retry := "支付服务将不再自动重试。"
	if notice.NextAttempt != nil {
		retry = fmt.Sprintf("下一次自动扣款时间：%s (UTC)。", notice.NextAttempt.UTC().Format(time.DateTime))
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #dc2626;">扣款失败</h2>
        <p>您好，%s：</p>
        <p>您的 Advanced 订阅本期扣款未成功（第 %d 次尝试）。</p>
        <p>账单编号：%s</p>
        <p>应付金额：%.2f</p>
        <p>%s</p>
        <p>请尽快在账单页面更新支付方式，以免套餐被降级。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, html.EscapeString(name), notice.AttemptCount, html.EscapeString(notice.InvoiceID), float64(notice.AmountDue)/100, retry)
}

// sendHTML 发送 HTML 邮件
func (s *Service) sendHTML(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if s.sender != nil {
		return gomail.Send(s.sender, m)
	}

	d := gomail.NewDialer(s.cfg.SMTPHost, s.cfg.SMTPPort, s.cfg.Username, s.cfg.Password)
	return d.DialAndSend(m)
}
