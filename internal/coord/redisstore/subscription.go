package redisstore

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/roomrelay/internal/coord"
	"github.com/yndnr/roomrelay/internal/core/domain"
)

const (
	// receivePoll bounds one blocking read so Run notices ctx cancellation.
	receivePoll = time.Second
	// healthInterval is how long the connection may stay silent before Run
	// sends a PING.
	healthInterval = 15 * time.Second
	// retryDelay is the pause after a receive error before reading again.
	retryDelay = 500 * time.Millisecond
)

// Subscription is a coord.Subscription over one redis.PubSub connection.
type Subscription struct {
	ps      *redis.PubSub
	handler coord.MessageHandler
	store   *Store

	mu      sync.Mutex
	waiters map[string][]chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

var _ coord.Subscription = (*Subscription)(nil)

// NewSubscription implements coord.Store. The dedicated connection is
// dialed lazily by the first Subscribe or by Run.
func (s *Store) NewSubscription(ctx context.Context, handler coord.MessageHandler) (coord.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Subscription{
		ps:      s.client.Subscribe(ctx),
		handler: handler,
		store:   s,
		waiters: make(map[string][]chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

func waiterKey(kind, channel string) string {
	return kind + "\x00" + channel
}

// Subscribe sends SUBSCRIBE and waits for the confirmation.
func (sub *Subscription) Subscribe(ctx context.Context, channel string) error {
	return sub.request(ctx, "subscribe", channel, sub.ps.Subscribe)
}

// Unsubscribe sends UNSUBSCRIBE and waits for the confirmation.
func (sub *Subscription) Unsubscribe(ctx context.Context, channel string) error {
	return sub.request(ctx, "unsubscribe", channel, sub.ps.Unsubscribe)
}

func (sub *Subscription) request(ctx context.Context, kind, channel string,
	send func(context.Context, ...string) error,
) error {
	select {
	case <-sub.done:
		return domain.ErrSubscriptionClosed
	default:
	}

	ctx, cancel := sub.store.withTimeout(ctx)
	defer cancel()

	key := waiterKey(kind, channel)
	ch := make(chan struct{})
	sub.mu.Lock()
	sub.waiters[key] = append(sub.waiters[key], ch)
	sub.mu.Unlock()

	if err := send(ctx, channel); err != nil {
		sub.dropWaiter(key, ch)
		return err
	}

	select {
	case <-ch:
		return nil
	case <-sub.done:
		return domain.ErrSubscriptionClosed
	case <-ctx.Done():
		sub.dropWaiter(key, ch)
		return ctx.Err()
	}
}

func (sub *Subscription) dropWaiter(key string, ch chan struct{}) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	list := sub.waiters[key]
	for i, w := range list {
		if w == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(sub.waiters, key)
	} else {
		sub.waiters[key] = list
	}
}

// confirm releases the oldest waiter for a confirmation. Confirmations
// nobody waits for come from go-redis resubscribing after a reconnect.
func (sub *Subscription) confirm(kind, channel string) {
	key := waiterKey(kind, channel)
	sub.mu.Lock()
	defer sub.mu.Unlock()
	list := sub.waiters[key]
	if len(list) == 0 {
		return
	}
	close(list[0])
	if len(list) == 1 {
		delete(sub.waiters, key)
	} else {
		sub.waiters[key] = list[1:]
	}
}

// Run reads the subscription connection until ctx is done or the handle is
// closed. Receive errors are logged and the read is retried; go-redis
// redials and resubscribes on its own.
func (sub *Subscription) Run(ctx context.Context) error {
	lastSeen := time.Now()
	for {
		select {
		case <-sub.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := sub.ps.ReceiveTimeout(ctx, receivePoll)
		if err != nil {
			if sub.isClosed() {
				return nil
			}
			if isTimeout(err) {
				if time.Since(lastSeen) >= healthInterval {
					if err := sub.ps.Ping(ctx); err != nil && !sub.isClosed() {
						sub.store.logger.Warn("coordination subscription ping failed", "error", err)
					}
					lastSeen = time.Now()
				}
				continue
			}

			sub.store.logger.Error("coordination subscription error", "error", err)
			select {
			case <-time.After(retryDelay):
			case <-sub.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		lastSeen = time.Now()

		switch m := msg.(type) {
		case *redis.Subscription:
			sub.confirm(m.Kind, m.Channel)
		case *redis.Message:
			sub.handler(m.Channel, []byte(m.Payload))
		case *redis.Pong:
		default:
			sub.store.logger.Debug("unexpected subscription reply", "reply", msg)
		}
	}
}

func (sub *Subscription) isClosed() bool {
	select {
	case <-sub.done:
		return true
	default:
		return false
	}
}

// Close closes the subscription connection and fails pending calls.
func (sub *Subscription) Close() error {
	var err error
	sub.closeOnce.Do(func() {
		close(sub.done)
		err = sub.ps.Close()
	})
	return err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
