package membership

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/yndnr/roomrelay/internal/coord"
	"github.com/yndnr/roomrelay/internal/core/domain"
	"github.com/yndnr/roomrelay/internal/telemetry/metric"
)

// Subscriber holds this process's channel subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, group string) error
	Unsubscribe(ctx context.Context, group string) error
	Subscribed(group string) bool
}

// LocalCounter reports how many connections of this process are in a group.
type LocalCounter interface {
	LocalCount(group string) int
}

// Store operation names used in errors and metrics.
const (
	opSetMembers  = "set_members"
	opSetAdd      = "set_add"
	opSetRemove   = "set_remove"
	opSetDelete   = "set_delete"
	opCounterIncr = "counter_increment"
	opCounterDel  = "counter_delete"
	opCounterGet  = "counter_get"
)

// Tracker maintains per-connection group sets and per-group connection
// counts in the coordination store.
type Tracker struct {
	store   coord.Store
	subs    Subscriber
	local   LocalCounter
	keys    coord.Keys
	locks   *groupLocks
	logger  *slog.Logger
	metrics *metric.Registry
}

// Option configures the Tracker.
type Option func(*Tracker)

// WithKeys sets the store key builder.
func WithKeys(k coord.Keys) Option {
	return func(t *Tracker) {
		t.keys = k
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(r *metric.Registry) Option {
	return func(t *Tracker) {
		t.metrics = r
	}
}

// New creates a tracker. subs is this process's subscription multiplexer and
// local its fan-out registry.
func New(store coord.Store, subs Subscriber, local LocalCounter, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		subs:   subs,
		local:  local,
		locks:  newGroupLocks(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Join records that connectionID joined group and ensures this process is
// subscribed to the group's channel.
//
// Joining the same group twice counts twice. A subscribe failure is returned
// as ErrSubscriptionFailure; the membership already written stays.
func (t *Tracker) Join(ctx context.Context, connectionID, group string) error {
	group, err := domain.NormalizeGroup(group)
	if err != nil {
		return err
	}

	unlock := t.locks.lock(group)
	defer unlock()

	subscribed, err := t.store.SetMembers(ctx, t.keys.SubscribedGroups())
	if err != nil {
		return t.storeError(opSetMembers, group, err)
	}
	fleetSubscribed := slices.Contains(subscribed, group)

	if _, err := t.store.SetAdd(ctx, t.keys.ConnectionGroups(connectionID), group); err != nil {
		return t.storeError(opSetAdd, group, err)
	}

	count, err := t.store.CounterIncrement(ctx, t.keys.GroupConnections(), group, 1)
	if err != nil {
		return t.storeError(opCounterIncr, group, err)
	}
	t.metrics.IncJoin()

	t.logger.DebugContext(ctx, "group joined",
		"connection_id", connectionID,
		"group", group,
		"count", count,
	)

	return t.ensureSubscribed(ctx, group, fleetSubscribed)
}

// ensureSubscribed subscribes this process to group unless it already is,
// and records the group in subscribed-rooms if the fleet had not.
func (t *Tracker) ensureSubscribed(ctx context.Context, group string, fleetSubscribed bool) error {
	if !t.subs.Subscribed(group) {
		if err := t.subs.Subscribe(ctx, group); err != nil {
			t.logger.WarnContext(ctx, "subscribe failed", "group", group, "error", err)
			return err
		}
	}

	if fleetSubscribed {
		return nil
	}
	if _, err := t.store.SetAdd(ctx, t.keys.SubscribedGroups(), group); err != nil {
		return t.storeError(opSetAdd, group, err)
	}
	return nil
}

// Leave removes connectionID and decrements every group it joined.
//
// A failure on one group does not stop the others; all failures are joined
// into the returned error. Leaving an unknown connection is a no-op.
func (t *Tracker) Leave(ctx context.Context, connectionID string) error {
	key := t.keys.ConnectionGroups(connectionID)

	groups, err := t.store.SetMembers(ctx, key)
	if err != nil {
		return t.storeError(opSetMembers, "", err)
	}
	if len(groups) == 0 {
		t.logger.DebugContext(ctx, "leave ignored",
			"connection_id", connectionID,
			"error", domain.ErrUnknownConnection,
		)
		return nil
	}

	var errs []error
	if err := t.store.SetDelete(ctx, key); err != nil {
		errs = append(errs, t.storeError(opSetDelete, "", err))
	}

	for _, group := range groups {
		if err := t.leaveGroup(ctx, group); err != nil {
			t.logger.WarnContext(ctx, "leave group failed",
				"connection_id", connectionID,
				"group", group,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	t.metrics.IncLeave()

	t.logger.DebugContext(ctx, "connection left",
		"connection_id", connectionID,
		"groups", len(groups),
	)
	return errors.Join(errs...)
}

func (t *Tracker) leaveGroup(ctx context.Context, group string) error {
	unlock := t.locks.lock(group)
	defer unlock()

	count, err := t.store.CounterIncrement(ctx, t.keys.GroupConnections(), group, -1)
	if err != nil {
		return t.storeError(opCounterIncr, group, err)
	}
	return t.releaseSubscription(ctx, group, count)
}

// releaseSubscription acts on a group's post-decrement count. At zero the
// counter goes away, this process unsubscribes and the group leaves
// subscribed-rooms. Above zero, this process unsubscribes only if none of
// its own connections remain in the group.
func (t *Tracker) releaseSubscription(ctx context.Context, group string, count int64) error {
	if count <= 0 {
		var errs []error
		if err := t.store.CounterDelete(ctx, t.keys.GroupConnections(), group); err != nil {
			errs = append(errs, t.storeError(opCounterDel, group, err))
		}
		if err := t.subs.Unsubscribe(ctx, group); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if _, err := t.store.SetRemove(ctx, t.keys.SubscribedGroups(), group); err != nil {
			errs = append(errs, t.storeError(opSetRemove, group, err))
		}
		return errors.Join(errs...)
	}

	if t.local.LocalCount(group) == 0 && t.subs.Subscribed(group) {
		return t.subs.Unsubscribe(ctx, group)
	}
	return nil
}

// Count returns the fleet-wide connection count for group.
func (t *Tracker) Count(ctx context.Context, group string) (int64, error) {
	group, err := domain.NormalizeGroup(group)
	if err != nil {
		return 0, err
	}

	n, err := t.store.CounterGet(ctx, t.keys.GroupConnections(), group)
	if err != nil {
		return 0, t.storeError(opCounterGet, group, err)
	}
	return max(n, 0), nil
}

// Groups returns the groups connectionID has joined.
func (t *Tracker) Groups(ctx context.Context, connectionID string) ([]string, error) {
	groups, err := t.store.SetMembers(ctx, t.keys.ConnectionGroups(connectionID))
	if err != nil {
		return nil, t.storeError(opSetMembers, "", err)
	}
	return groups, nil
}

func (t *Tracker) storeError(op, group string, err error) error {
	t.metrics.IncStoreError(op)
	details := op
	if group != "" {
		details = op + " " + group
	}
	return domain.ErrStoreUnavailable.WithDetails(details).WithCause(err)
}
