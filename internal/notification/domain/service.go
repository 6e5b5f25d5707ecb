package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidMessage       = errors.New("invalid_notification")
	ErrNotificationNotFound = errors.New("notification_not_found")
)

type Message struct {
	Kind      Kind
	Recipient string
	DedupeKey string
	Payload   map[string]any
}

// Service is the outbound side channel. Enqueue reports false when the
// dedupe key was already written.
type Service interface {
	Enqueue(ctx context.Context, msg Message) (bool, error)
	Deliver(ctx context.Context, id snowflake.ID) error
}

// Sender hands one notification to the external dispatcher.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}
