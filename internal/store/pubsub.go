package store

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Message is one pubsub delivery.
type Message struct {
	Channel string
	Payload string
}

// Subscription delivers messages for the channels it was opened on. The
// channel returned by Messages closes when the subscription ends.
type Subscription interface {
	Messages() <-chan *Message
	Close() error
}

// redisSubscription merges a Redis subscription with an in-memory one on the
// same channels, so publishes that fall back to memory during an outage still
// reach it.
type redisSubscription struct {
	ps    *redis.PubSub
	local Subscription
	out   chan *Message
}

func newRedisSubscription(ctx context.Context, ps *redis.PubSub, local Subscription) *redisSubscription {
	s := &redisSubscription{ps: ps, local: local, out: make(chan *Message, 100)}
	go func() {
		defer close(s.out)
		defer local.Close()
		in := ps.Channel()
		fromHub := local.Messages()
		for {
			var msg *Message
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				msg = &Message{Channel: m.Channel, Payload: m.Payload}
			case m, ok := <-fromHub:
				if !ok {
					fromHub = nil
					continue
				}
				msg = m
			}
			select {
			case s.out <- msg:
			default:
				// slow consumer; drop
			}
		}
	}()
	return s
}

func (s *redisSubscription) Messages() <-chan *Message { return s.out }

func (s *redisSubscription) Close() error {
	_ = s.local.Close()
	return s.ps.Close()
}

// hubSubscription is the in-memory counterpart of a redis subscription.
type hubSubscription struct {
	channels map[string]bool
	msgChan  chan *Message
	closeCh  chan struct{}
	closed   bool
	mu       sync.RWMutex
}

func newHubSubscription(channels []string) *hubSubscription {
	channelMap := make(map[string]bool, len(channels))
	for _, ch := range channels {
		channelMap[ch] = true
	}
	return &hubSubscription{
		channels: channelMap,
		msgChan:  make(chan *Message, 100),
		closeCh:  make(chan struct{}),
	}
}

func (m *hubSubscription) Messages() <-chan *Message {
	return m.msgChan
}

func (m *hubSubscription) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.closeCh)
		close(m.msgChan)
	}
	return nil
}

// send delivers without blocking; a full buffer drops the message.
func (m *hubSubscription) send(msg *Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed || !m.channels[msg.Channel] {
		return
	}
	select {
	case m.msgChan <- msg:
	default:
	}
}

// PubSubHub fans messages out to in-memory subscriptions.
type PubSubHub struct {
	subscribers map[string][]*hubSubscription
	mu          sync.RWMutex
}

func NewPubSubHub() *PubSubHub {
	return &PubSubHub{
		subscribers: make(map[string][]*hubSubscription),
	}
}

// Subscribe registers a subscription that is removed when ctx ends or it is closed.
func (h *PubSubHub) Subscribe(ctx context.Context, channels ...string) Subscription {
	sub := newHubSubscription(channels)

	h.mu.Lock()
	for _, channel := range channels {
		h.subscribers[channel] = append(h.subscribers[channel], sub)
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.closeCh:
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		for _, channel := range channels {
			subs := h.subscribers[channel]
			for i, s := range subs {
				if s == sub {
					h.subscribers[channel] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(h.subscribers[channel]) == 0 {
				delete(h.subscribers, channel)
			}
		}
	}()

	return sub
}

// Publish sends payload to all subscribers of channel.
func (h *PubSubHub) Publish(channel, payload string) {
	h.mu.RLock()
	subs := make([]*hubSubscription, len(h.subscribers[channel]))
	copy(subs, h.subscribers[channel])
	h.mu.RUnlock()

	msg := &Message{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.send(msg)
	}
}

// Subscribers counts live subscriptions on channel.
func (h *PubSubHub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[channel])
}
