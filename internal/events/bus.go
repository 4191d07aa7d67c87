// Package events publishes per-user notifications such as publish outcomes
// and account connections.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/store"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Notification types
const (
	TypePostPublished    = "post.published"
	TypePostFailed       = "post.failed"
	TypeSweepCompleted   = "sweep.completed"
	TypeAccountConnected = "account.connected"
	TypeAccountRemoved   = "account.removed"
	TypeAccountPrimary   = "account.primary"
)

type Notification struct {
	Type      string    `json:"type"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	PostID    string    `json:"postId,omitempty"`
	AccountID string    `json:"accountId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the transport the bus writes to.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Notifier emits notifications to a user.
type Notifier interface {
	Notify(ctx context.Context, userID string, n Notification)
}

type Bus struct {
	pub    Publisher
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewBus(pub Publisher, logger *zap.SugaredLogger) *Bus {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Bus{pub: pub, logger: logger, now: time.Now}
}

// Notify publishes n on the user's channel. Delivery is best effort; a
// transport failure is logged and dropped.
func (b *Bus) Notify(ctx context.Context, userID string, n Notification) {
	if b == nil || b.pub == nil || userID == "" {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = b.now().UTC()
	}
	if err := b.pub.Publish(ctx, store.NotificationChannel(userID), n); err != nil {
		b.logger.Warnw("Failed to publish notification", "user", userID, "type", n.Type, "error", err)
	}
}

// Discard drops every notification.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(context.Context, string, Notification) {}
