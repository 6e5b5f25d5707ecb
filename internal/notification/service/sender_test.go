package service_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/memoria/internal/config"
	"github.com/smallbiznis/memoria/internal/notification/domain"
	"github.com/smallbiznis/memoria/internal/notification/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingMailer struct {
	to      []string
	subject string
	body    string
}

func (m *recordingMailer) Send(_ context.Context, to []string, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return nil
}

func TestNewSenderPrecedence(t *testing.T) {
	mailer := &recordingMailer{}

	withWebhook := config.Config{Notification: config.NotificationConfig{WebhookURL: "http://hooks.local/notify"}}
	require.IsType(t, &service.WebhookSender{}, service.NewSender(service.SenderParams{Cfg: withWebhook, Log: zap.NewNop(), Email: mailer}))
	require.IsType(t, &service.EmailSender{}, service.NewSender(service.SenderParams{Cfg: config.Config{}, Log: zap.NewNop(), Email: mailer}))
	require.IsType(t, &service.LogSender{}, service.NewSender(service.SenderParams{Cfg: config.Config{}, Log: zap.NewNop()}))
}

func TestEmailSenderRendersTemplate(t *testing.T) {
	mailer := &recordingMailer{}
	sender := service.NewEmailSender(mailer)

	err := sender.Send(context.Background(), &domain.Notification{
		Kind:      domain.KindOrderConfirmation,
		Recipient: "ana@example.test",
		Payload:   map[string]any{"order_number": "MEM-2001", "total": "41.09 EUR"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ana@example.test"}, mailer.to)
	require.Equal(t, "Your memorial order MEM-2001 is confirmed", mailer.subject)
	require.Contains(t, mailer.body, "41.09 EUR")
}
