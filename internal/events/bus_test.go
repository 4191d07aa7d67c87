package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postmaster/postmaster-backend/internal/store"
)

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, string, interface{}) error {
	p.calls++
	return errors.New("down")
}

func TestBusNotifyDeliversToUserChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := store.NewInMemoryCache(nil, nil)
	sub, err := cache.Subscribe(ctx, store.NotificationChannel("u1"))
	require.NoError(t, err)

	bus := NewBus(cache, nil)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	bus.Notify(ctx, "u2", Notification{Type: TypePostFailed, Title: "not for u1"})
	bus.Notify(ctx, "u1", Notification{Type: TypePostPublished, Level: LevelSuccess, Title: "Published", PostID: "p1"})

	select {
	case msg := <-sub.Messages():
		var n Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
		assert.Equal(t, TypePostPublished, n.Type)
		assert.Equal(t, "p1", n.PostID)
		assert.True(t, fixed.Equal(n.Timestamp))
	case <-time.After(time.Second):
		t.Fatal("no notification delivered")
	}
}

func TestBusNotifySwallowsTransportErrors(t *testing.T) {
	pub := &failingPublisher{}
	bus := NewBus(pub, nil)
	bus.Notify(context.Background(), "u1", Notification{Type: TypeSweepCompleted})
	bus.Notify(context.Background(), "", Notification{Type: TypeSweepCompleted})
	assert.Equal(t, 1, pub.calls, "empty user is skipped")
}
