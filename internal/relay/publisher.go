package relay

import (
	"context"
	"strconv"

	"github.com/yndnr/roomrelay/internal/coord"
	"github.com/yndnr/roomrelay/internal/core/domain"
	"github.com/yndnr/roomrelay/internal/telemetry/metric"
)

// DefaultMaxPayload is the largest message Publish accepts by default.
const DefaultMaxPayload = 64 * 1024

// Publisher emits room messages on the shared channels. Every process with
// a member in the room receives the message through its Multiplexer.
type Publisher struct {
	store      coord.Store
	keys       coord.Keys
	maxPayload int
	metrics    *metric.Registry
}

// NewPublisher creates a publisher. maxPayload <= 0 selects
// DefaultMaxPayload.
func NewPublisher(store coord.Store, keys coord.Keys, maxPayload int, metrics *metric.Registry) *Publisher {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Publisher{
		store:      store,
		keys:       keys,
		maxPayload: maxPayload,
		metrics:    metrics,
	}
}

// MaxPayload returns the payload limit in bytes.
func (p *Publisher) MaxPayload() int {
	return p.maxPayload
}

// Publish sends payload to room and returns how many processes received it.
func (p *Publisher) Publish(ctx context.Context, room string, payload []byte) (int64, error) {
	room, err := domain.NormalizeGroup(room)
	if err != nil {
		return 0, err
	}
	if len(payload) > p.maxPayload {
		return 0, domain.ErrPayloadTooLarge.WithDetails("limit " + strconv.Itoa(p.maxPayload) + " bytes")
	}

	n, err := p.store.Publish(ctx, p.keys.Channel(room), payload)
	p.metrics.ObservePublish(err)
	if err != nil {
		return 0, domain.ErrStoreUnavailable.WithDetails("publish " + room).WithCause(err)
	}
	return n, nil
}
