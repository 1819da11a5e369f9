// Package relay owns the process-wide channel subscription.
//
// A relay process holds exactly one coord.Subscription. The Multiplexer adds
// and removes group channels on that handle when the membership tracker asks,
// and forwards every message the store delivers to the local fan-out sink.
package relay

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/yndnr/roomrelay/internal/coord"
	"github.com/yndnr/roomrelay/internal/core/domain"
	"github.com/yndnr/roomrelay/internal/telemetry/metric"
)

// Deliverer receives messages for local fan-out.
type Deliverer interface {
	Deliver(group string, payload []byte)
}

// Multiplexer routes one shared subscription handle to the fan-out sink.
type Multiplexer struct {
	sub     coord.Subscription
	keys    coord.Keys
	sink    Deliverer
	logger  *slog.Logger
	metrics *metric.Registry

	mu         sync.RWMutex
	subscribed map[string]struct{}
	closed     bool
}

// Option configures the Multiplexer.
type Option func(*Multiplexer)

// WithKeys sets the key builder used to map groups to channels.
func WithKeys(k coord.Keys) Option {
	return func(m *Multiplexer) {
		m.keys = k
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Multiplexer) {
		m.logger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(r *metric.Registry) Option {
	return func(m *Multiplexer) {
		m.metrics = r
	}
}

// New acquires the subscription handle from store. Call Run to start
// receiving and Close to release the handle.
func New(ctx context.Context, store coord.Store, sink Deliverer, opts ...Option) (*Multiplexer, error) {
	m := &Multiplexer{
		sink:       sink,
		logger:     slog.Default(),
		subscribed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	sub, err := store.NewSubscription(ctx, m.onMessage)
	if err != nil {
		return nil, domain.ErrSubscriptionFailure.WithDetails("open subscription").WithCause(err)
	}
	m.sub = sub
	return m, nil
}

// Subscribe adds group's channel to this process's subscription and returns
// once the store confirms it.
func (m *Multiplexer) Subscribe(ctx context.Context, group string) error {
	if m.isClosed() {
		return domain.ErrSubscriptionFailure.WithDetails(group).WithCause(domain.ErrSubscriptionClosed)
	}

	err := m.sub.Subscribe(ctx, m.keys.Channel(group))
	m.metrics.ObserveSubscribe(err)
	if err != nil {
		return domain.ErrSubscriptionFailure.WithDetails(group).WithCause(err)
	}

	m.mu.Lock()
	m.subscribed[group] = struct{}{}
	m.mu.Unlock()

	m.logger.Debug("subscribed", "group", group)
	return nil
}

// Unsubscribe removes group's channel from this process's subscription.
func (m *Multiplexer) Unsubscribe(ctx context.Context, group string) error {
	if m.isClosed() {
		return domain.ErrSubscriptionFailure.WithDetails(group).WithCause(domain.ErrSubscriptionClosed)
	}

	err := m.sub.Unsubscribe(ctx, m.keys.Channel(group))
	m.metrics.ObserveUnsubscribe(err)
	if err != nil {
		return domain.ErrSubscriptionFailure.WithDetails(group).WithCause(err)
	}

	m.mu.Lock()
	delete(m.subscribed, group)
	m.mu.Unlock()

	m.logger.Debug("unsubscribed", "group", group)
	return nil
}

// Subscribed reports whether this process currently holds a subscription
// for group.
func (m *Multiplexer) Subscribed(group string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.subscribed[group]
	return ok
}

// Groups returns the locally subscribed groups, sorted.
func (m *Multiplexer) Groups() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.subscribed))
	for g := range m.subscribed {
		out = append(out, g)
	}
	m.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Run pumps messages from the store until ctx is done or Close is called.
func (m *Multiplexer) Run(ctx context.Context) error {
	return m.sub.Run(ctx)
}

// Close releases the subscription handle.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.subscribed = make(map[string]struct{})
	m.mu.Unlock()

	return m.sub.Close()
}

func (m *Multiplexer) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Multiplexer) onMessage(channel string, payload []byte) {
	group, ok := m.keys.GroupFromChannel(channel)
	if !ok {
		m.logger.Debug("message on foreign channel dropped", "channel", channel)
		return
	}
	m.metrics.IncMessageReceived()
	m.sink.Deliver(group, payload)
}
