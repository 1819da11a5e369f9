package memstore

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"

	"github.com/yndnr/roomrelay/internal/coord"
	"github.com/yndnr/roomrelay/internal/core/domain"
)

type message struct {
	channel string
	payload []byte
}

// Subscription is a subscriber handle on a Store.
type Subscription struct {
	store   *Store
	handler coord.MessageHandler
	queue   chan message
	done    chan struct{}

	mu       sync.Mutex
	channels map[string]struct{}

	closeOnce sync.Once
	dropped   atomic.Int64
}

var _ coord.Subscription = (*Subscription)(nil)

// NewSubscription opens a subscription handle delivering to handler.
func (s *Store) NewSubscription(ctx context.Context, handler coord.MessageHandler) (coord.Subscription, error) {
	return s.Open(ctx, handler)
}

// Open is NewSubscription returning the concrete handle.
func (s *Store) Open(ctx context.Context, handler coord.MessageHandler) (*Subscription, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return &Subscription{
		store:    s,
		handler:  handler,
		queue:    make(chan message, s.queueSize),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}, nil
}

// Publish delivers payload to every subscriber of channel and returns how
// many accepted it. Subscribers with a full queue miss the message.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	msg := message{channel: channel, payload: bytes.Clone(payload)}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for sub := range s.subscribers[channel] {
		select {
		case sub.queue <- msg:
			n++
		default:
			sub.dropped.Add(1)
		}
	}
	return n, nil
}

// NumSubscribers returns the number of handles subscribed to channel.
func (s *Store) NumSubscribers(channel string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers[channel])
}

func (s *Store) attach(channel string, sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers[channel] == nil {
		s.subscribers[channel] = make(map[*Subscription]struct{})
	}
	s.subscribers[channel][sub] = struct{}{}
}

func (s *Store) detach(channel string, sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subs, ok := s.subscribers[channel]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(s.subscribers, channel)
		}
	}
}

// Subscribe adds channel to the handle. Confirmation is immediate.
func (sub *Subscription) Subscribe(ctx context.Context, channel string) error {
	_, err := sub.SubscribeCount(ctx, channel)
	return err
}

// SubscribeCount subscribes channel and returns the number of channels the
// handle now holds, as reported in a RESP subscribe confirmation.
func (sub *Subscription) SubscribeCount(ctx context.Context, channel string) (int, error) {
	if err := sub.ready(ctx); err != nil {
		return 0, err
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if _, ok := sub.channels[channel]; !ok {
		sub.channels[channel] = struct{}{}
		sub.store.attach(channel, sub)
	}
	return len(sub.channels), nil
}

// Unsubscribe removes channel from the handle.
func (sub *Subscription) Unsubscribe(ctx context.Context, channel string) error {
	_, err := sub.UnsubscribeCount(ctx, channel)
	return err
}

// UnsubscribeCount unsubscribes channel and returns the remaining count.
func (sub *Subscription) UnsubscribeCount(ctx context.Context, channel string) (int, error) {
	if err := sub.ready(ctx); err != nil {
		return 0, err
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if _, ok := sub.channels[channel]; ok {
		delete(sub.channels, channel)
		sub.store.detach(channel, sub)
	}
	return len(sub.channels), nil
}

// Channels returns the channels currently held by the handle.
func (sub *Subscription) Channels() []string {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	out := make([]string, 0, len(sub.channels))
	for ch := range sub.channels {
		out = append(out, ch)
	}
	return out
}

// Dropped returns how many messages were lost to a full queue.
func (sub *Subscription) Dropped() int64 {
	return sub.dropped.Load()
}

func (sub *Subscription) ready(ctx context.Context) error {
	select {
	case <-sub.done:
		return domain.ErrSubscriptionClosed
	default:
	}
	if sub.store.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Run hands queued messages to the handler until ctx is done or the handle
// is closed. It returns nil after Close.
func (sub *Subscription) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.done:
			return nil
		case msg := <-sub.queue:
			sub.handler(msg.channel, msg.payload)
		}
	}
}

// Close detaches the handle from every channel.
func (sub *Subscription) Close() error {
	sub.closeOnce.Do(func() {
		close(sub.done)

		sub.mu.Lock()
		defer sub.mu.Unlock()
		for ch := range sub.channels {
			sub.store.detach(ch, sub)
		}
		sub.channels = make(map[string]struct{})
	})
	return nil
}
