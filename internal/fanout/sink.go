// Package fanout delivers group messages to the connections of this process.
//
// The Sink keeps the process-local view of membership: which sessions are
// attached and which groups each joined. The membership tracker consults
// LocalCount to decide when this process can drop its channel subscription.
package fanout

import (
	"log/slog"
	"sort"

	"github.com/yndnr/roomrelay/internal/core/domain"
	"github.com/yndnr/roomrelay/internal/telemetry/metric"
	"github.com/yndnr/roomrelay/pkg/cmap"
)

// Session is a local connection able to receive group messages.
type Session interface {
	ID() string
	Send(group string, payload []byte) error
}

// Sink is the local fan-out registry.
type Sink struct {
	sessions *cmap.Map[Session]
	joined   *cmap.Map[map[string]struct{}] // session id -> groups
	members  *cmap.Map[map[string]Session]  // group -> session id -> session

	logger  *slog.Logger
	metrics *metric.Registry
}

// Option configures the Sink.
type Option func(*Sink)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

// New creates an empty sink.
func New(opts ...Option) *Sink {
	s := &Sink{
		sessions: cmap.New[Session](),
		joined:   cmap.New[map[string]struct{}](),
		members:  cmap.New[map[string]Session](),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach registers a newly accepted session with no groups.
func (s *Sink) Attach(session Session) {
	s.sessions.Store(session.ID(), session)
	s.joined.Store(session.ID(), make(map[string]struct{}))
}

// Join records that the session joined group on this process and reports
// whether the group is new for it. Joining twice is a no-op here; the fleet
// counter is the tracker's concern.
func (s *Sink) Join(sessionID, group string) (bool, error) {
	session, ok := s.sessions.Load(sessionID)
	if !ok {
		return false, domain.ErrUnknownConnection.WithDetails(sessionID)
	}

	var added bool
	ok = s.joined.Update(sessionID, func(groups map[string]struct{}, exists bool) (map[string]struct{}, bool) {
		if !exists {
			return nil, false
		}
		if _, dup := groups[group]; !dup {
			groups[group] = struct{}{}
			added = true
		}
		return groups, true
	})
	if !ok {
		return false, domain.ErrUnknownConnection.WithDetails(sessionID)
	}

	s.members.Update(group, func(set map[string]Session, exists bool) (map[string]Session, bool) {
		if !exists {
			set = make(map[string]Session)
		}
		set[sessionID] = session
		return set, true
	})
	return added, nil
}

// Part removes group from the session without detaching it. It reports
// whether the session was in group.
func (s *Sink) Part(sessionID, group string) bool {
	var removed bool
	s.joined.Update(sessionID, func(groups map[string]struct{}, exists bool) (map[string]struct{}, bool) {
		if !exists {
			return nil, false
		}
		_, removed = groups[group]
		delete(groups, group)
		return groups, true
	})
	if removed {
		s.drop(group, sessionID)
	}
	return removed
}

// Detach removes the session and returns the groups it had joined, sorted.
// Detaching an unknown session returns nil.
func (s *Sink) Detach(sessionID string) []string {
	s.sessions.Delete(sessionID)

	groups, ok := s.joined.LoadAndDelete(sessionID)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(groups))
	for group := range groups {
		out = append(out, group)
		s.drop(group, sessionID)
	}
	sort.Strings(out)
	return out
}

func (s *Sink) drop(group, sessionID string) {
	s.members.Update(group, func(set map[string]Session, exists bool) (map[string]Session, bool) {
		if !exists {
			return nil, false
		}
		delete(set, sessionID)
		return set, len(set) > 0
	})
}

// LocalCount returns how many sessions of this process are in group.
func (s *Sink) LocalCount(group string) int {
	var n int
	s.members.Peek(group, func(set map[string]Session, _ bool) {
		n = len(set)
	})
	return n
}

// Sessions returns the number of attached sessions.
func (s *Sink) Sessions() int {
	return s.sessions.Len()
}

// Deliver sends payload to every local session in group.
//
// Delivery is best-effort: a failing session is logged and counted, and the
// remaining sessions still receive the message.
func (s *Sink) Deliver(group string, payload []byte) {
	var targets []Session
	s.members.Peek(group, func(set map[string]Session, _ bool) {
		targets = make([]Session, 0, len(set))
		for _, session := range set {
			targets = append(targets, session)
		}
	})

	for _, session := range targets {
		err := session.Send(group, payload)
		s.metrics.ObserveDelivery(err)
		if err != nil {
			s.logger.Debug("delivery failed",
				"connection_id", session.ID(),
				"group", group,
				"error", err,
			)
		}
	}
}
