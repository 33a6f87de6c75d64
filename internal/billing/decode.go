package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
)

var (
	ErrUnhandledType    = errors.New("unhandled billing event type")
	ErrMalformedPayload = errors.New("malformed billing event payload")
)

// MetadataPlanInterval 结账会话 metadata 中记录订阅周期的键
const MetadataPlanInterval = "plan_interval"

// MetadataUserID 结账会话 metadata 中记录用户 ID 的键
const MetadataUserID = "user_id"

// objectID 兼容字符串 ID 与展开后的对象
type objectID string

func (o *objectID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = objectID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*o = objectID(obj.ID)
	return nil
}

type checkoutSessionPayload struct {
	ID              string   `json:"id"`
	Customer        objectID `json:"customer"`
	Subscription    objectID `json:"subscription"`
	CustomerEmail   string   `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	AmountTotal int64             `json:"amount_total"`
	Metadata    map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID               string   `json:"id"`
	Customer         objectID `json:"customer"`
	Status           string   `json:"status"`
	CurrentPeriodEnd int64    `json:"current_period_end"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// periodEnd 新版 API 把 current_period_end 放在订阅项上，取最晚的一个
func (p *subscriptionPayload) periodEnd() time.Time {
	end := p.CurrentPeriodEnd
	for _, item := range p.Items.Data {
		if item.CurrentPeriodEnd > end {
			end = item.CurrentPeriodEnd
		}
	}
	return unixOrZero(end)
}

type invoicePayload struct {
	ID            string   `json:"id"`
	Customer      objectID `json:"customer"`
	CustomerEmail string   `json:"customer_email"`
	Subscription  objectID `json:"subscription"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription objectID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	AmountDue          int64  `json:"amount_due"`
	AttemptCount       int64  `json:"attempt_count"`
	NextPaymentAttempt *int64 `json:"next_payment_attempt"`
}

func (p *invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return string(p.Subscription)
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return string(p.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

// Decode 将已验签的 Stripe 事件转换为对应的账单事件。
// 未知类型返回 ErrUnhandledType，无法解析的负载返回 ErrMalformedPayload
func Decode(event *stripe.Event) (Event, error) {
	meta := Meta{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: unixOrZero(event.Created),
	}

	switch meta.Type {
	case TypeCheckoutCompleted, TypeSubscriptionUpdated, TypeSubscriptionCanceled,
		TypePaymentSucceeded, TypePaymentFailed:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnhandledType, meta.Type)
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: %s has no data object", ErrMalformedPayload, meta.Type)
	}
	raw := event.Data.Raw

	switch meta.Type {
	case TypeCheckoutCompleted:
		var p checkoutSessionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, malformed(meta.Type, err)
		}
		email := p.CustomerEmail
		if email == "" && p.CustomerDetails != nil {
			email = p.CustomerDetails.Email
		}
		return &CheckoutCompleted{
			Meta:           meta,
			CustomerEmail:  email,
			CustomerID:     string(p.Customer),
			SubscriptionID: string(p.Subscription),
			AmountTotal:    p.AmountTotal,
			Interval:       ParseInterval(p.Metadata[MetadataPlanInterval]),
		}, nil

	case TypeSubscriptionUpdated:
		var p subscriptionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, malformed(meta.Type, err)
		}
		return &SubscriptionUpdated{
			Meta:             meta,
			CustomerID:       string(p.Customer),
			SubscriptionID:   p.ID,
			Status:           p.Status,
			CurrentPeriodEnd: p.periodEnd(),
		}, nil

	case TypeSubscriptionCanceled:
		var p subscriptionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, malformed(meta.Type, err)
		}
		return &SubscriptionCanceled{
			Meta:           meta,
			CustomerID:     string(p.Customer),
			SubscriptionID: p.ID,
		}, nil

	case TypePaymentSucceeded:
		var p invoicePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, malformed(meta.Type, err)
		}
		return &PaymentSucceeded{
			Meta:           meta,
			CustomerID:     string(p.Customer),
			SubscriptionID: p.subscriptionID(),
			InvoiceID:      p.ID,
		}, nil

	default: // TypePaymentFailed
		var p invoicePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, malformed(meta.Type, err)
		}
		e := &PaymentFailed{
			Meta:           meta,
			CustomerID:     string(p.Customer),
			CustomerEmail:  p.CustomerEmail,
			SubscriptionID: p.subscriptionID(),
			InvoiceID:      p.ID,
			AmountDue:      p.AmountDue,
			AttemptCount:   p.AttemptCount,
		}
		if p.NextPaymentAttempt != nil && *p.NextPaymentAttempt > 0 {
			next := unixOrZero(*p.NextPaymentAttempt)
			e.NextAttempt = &next
		}
		return e, nil
	}
}

func malformed(eventType string, err error) error {
	return fmt.Errorf("%w: decode %s: %v", ErrMalformedPayload, eventType, err)
}

func unixOrZero(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
