package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/yndnr/roomrelay/internal/core/domain"
	"github.com/yndnr/roomrelay/internal/fanout"
	"github.com/yndnr/roomrelay/internal/telemetry/logger"
	"github.com/yndnr/roomrelay/internal/telemetry/metric"
)

// Config holds gateway limits and the origin policy.
type Config struct {
	// AllowedOrigins lists accepted Origin values. "*" accepts any origin.
	// Requests without an Origin header (non-browser clients) are accepted.
	AllowedOrigins []string

	// MaxFrameBytes limits one inbound frame.
	MaxFrameBytes int64

	// FramesPerSecond and FrameBurst bound inbound frames per connection.
	FramesPerSecond float64
	FrameBurst      int

	// WriteTimeout bounds one outbound frame write.
	WriteTimeout time.Duration

	// PingInterval is the keepalive period. A connection that does not
	// answer within two intervals is closed.
	PingInterval time.Duration

	// SendQueue is the per-connection outbound buffer. Messages for a
	// connection with a full queue are dropped.
	SendQueue int

	// LeaveTimeout bounds the fleet-wide leave after a disconnect.
	LeaveTimeout time.Duration
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:  []string{"http://localhost:3000"},
		MaxFrameBytes:   16 * 1024,
		FramesPerSecond: 40,
		FrameBurst:      40,
		WriteTimeout:    10 * time.Second,
		PingInterval:    25 * time.Second,
		SendQueue:       64,
		LeaveTimeout:    10 * time.Second,
	}
}

// Tracker is the fleet-wide membership the gateway reports to.
type Tracker interface {
	Join(ctx context.Context, connectionID, group string) error
	Leave(ctx context.Context, connectionID string) error
}

// Registry is the process-local fan-out registry.
type Registry interface {
	Attach(session fanout.Session)
	Join(sessionID, group string) (bool, error)
	Part(sessionID, group string) bool
	Detach(sessionID string) []string
}

// Gateway is the websocket endpoint.
type Gateway struct {
	cfg      Config
	upgrader websocket.Upgrader
	tracker  Tracker
	registry Registry
	logger   *slog.Logger
	metrics  *metric.Registry

	mu       sync.Mutex
	sessions map[*session]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(r *metric.Registry) Option {
	return func(g *Gateway) {
		g.metrics = r
	}
}

// New creates a gateway reporting to tracker and registry.
func New(cfg Config, tracker Tracker, registry Registry, opts ...Option) *Gateway {
	def := DefaultConfig()
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = def.MaxFrameBytes
	}
	if cfg.FramesPerSecond <= 0 {
		cfg.FramesPerSecond = def.FramesPerSecond
	}
	if cfg.FrameBurst <= 0 {
		cfg.FrameBurst = max(int(cfg.FramesPerSecond), 1)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = def.SendQueue
	}
	if cfg.LeaveTimeout <= 0 {
		cfg.LeaveTimeout = def.LeaveTimeout
	}

	g := &Gateway{
		cfg:      cfg,
		tracker:  tracker,
		registry: registry,
		logger:   slog.Default(),
		sessions: make(map[*session]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return OriginAllowed(g.cfg.AllowedOrigins, origin)
}

// OriginAllowed reports whether origin matches the allow list. Scheme and
// host compare case-insensitively.
func OriginAllowed(allowed []string, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" {
			return true
		}
		au, err := url.Parse(a)
		if err != nil {
			continue
		}
		if strings.EqualFold(au.Scheme, u.Scheme) && strings.EqualFold(au.Host, u.Host) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	closing := g.closing
	g.mu.Unlock()
	if closing {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	id, err := domain.NewConnectionID()
	if err != nil {
		g.logger.Error("connection id generation failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		g.logger.Debug("websocket upgrade failed",
			"remote", r.RemoteAddr,
			"origin", r.Header.Get("Origin"),
			"error", err,
		)
		return
	}

	s := newSession(id, conn, g.cfg)
	if !g.track(s) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer g.untrack(s)

	ctx := logger.WithConnectionID(context.WithoutCancel(r.Context()), id)
	g.serve(ctx, s)
}

func (g *Gateway) track(s *session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.sessions[s] = struct{}{}
	g.wg.Add(1)
	return true
}

func (g *Gateway) untrack(s *session) {
	g.mu.Lock()
	delete(g.sessions, s)
	g.mu.Unlock()
	g.wg.Done()
}

// serve runs the session: write pump in the background, read loop here,
// then the leave sequence.
func (g *Gateway) serve(ctx context.Context, s *session) {
	g.registry.Attach(s)
	g.metrics.ConnectionOpened()
	g.logger.DebugContext(ctx, "connection accepted", "connection_id", s.id, "remote", s.conn.RemoteAddr().String())

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writePump()
	}()

	s.enqueue(outboundFrame{Type: FrameConnected, ID: s.id})
	g.readLoop(ctx, s)

	s.close()
	<-writeDone
	_ = s.conn.Close()

	// Local first, so the fleet counters never lag behind a session that
	// could still receive messages.
	groups := g.registry.Detach(s.id)

	leaveCtx, cancel := context.WithTimeout(ctx, g.cfg.LeaveTimeout)
	defer cancel()
	if err := g.tracker.Leave(leaveCtx, s.id); err != nil {
		g.logger.WarnContext(ctx, "leave failed",
			"connection_id", s.id,
			"groups", groups,
			"error", err,
		)
	}
	g.metrics.ConnectionClosed()
	g.logger.DebugContext(ctx, "connection closed", "connection_id", s.id, "groups", len(groups))
}

func (g *Gateway) readLoop(ctx context.Context, s *session) {
	pongWait := 2 * g.cfg.PingInterval
	s.conn.SetReadLimit(g.cfg.MaxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(g.cfg.FramesPerSecond), g.cfg.FrameBurst)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				g.logger.InfoContext(ctx, "frame too large, closing",
					"connection_id", s.id,
					"limit", g.cfg.MaxFrameBytes,
				)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				g.logger.DebugContext(ctx, "connection read error", "connection_id", s.id, "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !limiter.Allow() {
			s.enqueue(errorFrame(domain.ErrRateLimited))
			continue
		}
		g.handleFrame(ctx, s, data)
	}
}

func (g *Gateway) handleFrame(ctx context.Context, s *session, data []byte) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.enqueue(errorFrame(domain.ErrInvalidFrame.WithDetails("frame must be a JSON object")))
		return
	}

	switch f.Type {
	case FrameJoinRoom:
		room, err := parseJoinRoom(f.Payload)
		if err != nil {
			s.enqueue(errorFrame(err))
			return
		}
		if err := g.join(ctx, s, room); err != nil {
			g.logger.WarnContext(ctx, "join failed",
				"connection_id", s.id,
				"group", room,
				"error", err,
			)
			s.enqueue(errorFrame(err))
			return
		}
		s.enqueue(outboundFrame{Type: FrameJoined, Room: room})
	default:
		s.enqueue(errorFrame(domain.ErrInvalidFrame.WithDetails("unknown frame type " + strconv.Quote(f.Type))))
	}
}

// join records the membership locally before the fleet join so the first
// message on a freshly subscribed channel finds its recipient.
//
// A subscribe failure keeps the membership; the next join of the group
// retries the subscription. Any other failure undoes a local membership this
// call added, so the session only receives groups it was told it joined.
func (g *Gateway) join(ctx context.Context, s *session, room string) error {
	added, err := g.registry.Join(s.id, room)
	if err != nil {
		return err
	}
	err = g.tracker.Join(ctx, s.id, room)
	if err != nil && added && !errors.Is(err, domain.ErrSubscriptionFailure) {
		g.registry.Part(s.id, room)
	}
	return err
}

// Connections returns the number of open sessions.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Shutdown refuses new connections, asks every open session to close and
// waits until their leave sequences have finished.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	sessions := make([]*session, 0, len(g.sessions))
	for s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.goAway()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, s := range sessions {
			_ = s.conn.Close()
		}
		return ctx.Err()
	}
}
