package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/memoria/internal/config"
	"github.com/smallbiznis/memoria/internal/notification/domain"
	"github.com/smallbiznis/memoria/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultSendTimeout = 5 * time.Second

type SenderParams struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Email email.Provider `optional:"true"`
}

// NewSender posts to the configured webhook, falls back to SMTP, and only
// logs when neither is set.
func NewSender(p SenderParams) domain.Sender {
	cfg := p.Cfg
	url := strings.TrimSpace(cfg.Notification.WebhookURL)
	if url == "" {
		if p.Email != nil {
			return NewEmailSender(p.Email)
		}
		return &LogSender{log: p.Log.Named("notification.sender")}
	}
	timeout := cfg.Notification.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return NewWebhookSender(url, &http.Client{Timeout: timeout})
}

type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string, client *http.Client) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: defaultSendTimeout}
	}
	return &WebhookSender{url: url, client: client}
}

type webhookBody struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Recipient string         `json:"recipient"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func (s *WebhookSender) Send(ctx context.Context, n *domain.Notification) error {
	body, err := json.Marshal(webhookBody{
		ID:        n.ID.String(),
		Kind:      string(n.Kind),
		Recipient: n.Recipient,
		Payload:   n.Payload,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.DedupeKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}

// EmailSender renders the notification kind's template and mails it to the
// recipient.
type EmailSender struct {
	provider email.Provider
}

func NewEmailSender(provider email.Provider) *EmailSender {
	return &EmailSender{provider: provider}
}

func (s *EmailSender) Send(ctx context.Context, n *domain.Notification) error {
	subject, body, err := email.Render(string(n.Kind), n.Payload)
	if err != nil {
		return err
	}
	return s.provider.Send(ctx, []string{n.Recipient}, subject, body)
}

type LogSender struct {
	log *zap.Logger
}

func (s *LogSender) Send(_ context.Context, n *domain.Notification) error {
	s.log.Info("notification webhook not configured, logging only",
		zap.String("notification_id", n.ID.String()),
		zap.String("kind", string(n.Kind)),
		zap.String("recipient", n.Recipient),
	)
	return nil
}
