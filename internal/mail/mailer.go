package mail

import (
	"context"
	"errors"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Message 是单封邮件的传输层无关表示。
type Message struct {
	To       string
	Subject  string
	Text     string
	HTMLBody string
}

// Mailer abstracts the outbound mail transport. Implementations must return
// an error when delivery to the transport fails; callers decide whether that
// error is fatal to the surrounding operation.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var errNotConfigured = errors.New("mail transport not configured (missing RESEND_API_KEY)")

// ResendMailer delivers mail through the Resend API.
type ResendMailer struct {
	client    *resend.Client
	fromEmail string
}

// NewResendMailer 创建 Resend 客户端；apiKey 为空时返回的实例
// 会在发送时报错而不是悄悄丢弃邮件。
func NewResendMailer(apiKey, fromEmail string) *ResendMailer {
	var client *resend.Client
	if apiKey != "" {
		client = resend.NewClient(apiKey)
	}

	return &ResendMailer{client: client, fromEmail: fromEmail}
}

// Send delivers one message, honoring the caller's context deadline.
func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	if m.client == nil {
		return errNotConfigured
	}

	params := &resend.SendEmailRequest{
		From:    m.fromEmail,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTMLBody,
	}

	_, err := m.client.Emails.SendWithContext(ctx, params)
	return err
}

// LogMailer 在开发模式下把邮件写进日志而不是真正发送。
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	slog.Info("email sent (dev mode)", "to", msg.To, "subject", msg.Subject)
	return nil
}
