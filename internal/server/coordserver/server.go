package coordserver

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/roomrelay/internal/coord/memstore"
)

// Config holds the embedded server configuration.
type Config struct {
	// Address is the listen address.
	Address string
	// TLSConfig enables TLS when set.
	TLSConfig *tls.Config
	// Password, when set, must be presented with AUTH before other commands.
	Password string
	// ReadTimeout bounds reading one command once its first byte arrived.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing one reply or pushed message.
	WriteTimeout time.Duration
	// IdleTimeout closes connections idle between commands. Connections in
	// subscribe mode are exempt.
	IdleTimeout time.Duration
	// CommandRate is the per-connection command limit per second (0 disables).
	CommandRate int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      "127.0.0.1:6379",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
	}
}

// Server is the embedded coordination server.
type Server struct {
	cfg     *Config
	handler *CommandHandler
	logger  *slog.Logger

	mu      sync.Mutex
	ln      net.Listener
	conns   map[*Conn]struct{}
	running atomic.Bool
	wg      sync.WaitGroup
}

// Conn is one client connection.
type Conn struct {
	netConn net.Conn
	br      *bufio.Reader

	// wmu serializes replies from the command loop with pushed messages.
	wmu sync.Mutex
	w   *Writer

	limiter       *rate.Limiter
	authenticated bool

	// Subscribe mode state, owned by the command loop.
	sub       *memstore.Subscription
	subCount  int
	subCancel context.CancelFunc

	closed atomic.Bool
}

func newConn(c net.Conn, commandRate int) *Conn {
	conn := &Conn{
		netConn: c,
		br:      bufio.NewReader(c),
		w:       NewWriter(c),
	}
	if commandRate > 0 {
		conn.limiter = rate.NewLimiter(rate.Limit(commandRate), commandRate)
	}
	return conn
}

// Close closes the network connection. The serving goroutine then exits
// and releases the subscription.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.netConn.Close()
}

// release drops the subscription handle. Called by the serving goroutine.
func (c *Conn) release() {
	if c.subCancel != nil {
		c.subCancel()
	}
	if c.sub != nil {
		c.sub.Close()
	}
}

// RemoteAddr returns the client address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

func (c *Conn) subscribeMode() bool {
	return c.subCount > 0
}

// New creates a server over store.
func New(cfg *Config, store *memstore.Store, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[*Conn]struct{}),
	}
	s.handler = NewCommandHandler(store, cfg, s.logger)
	s.handler.push = s.push
	return s
}

// Listen binds the listener. Addr is valid afterwards.
func (s *Server) Listen() error {
	var (
		ln  net.Listener
		err error
	)
	if s.cfg.TLSConfig != nil {
		ln, err = tls.Listen("tcp", s.cfg.Address, s.cfg.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", s.cfg.Address)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.running.Store(true)

	s.logger.Info("coordination server listening",
		"address", ln.Addr().String(),
		"tls", s.cfg.TLSConfig != nil,
	)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Serve(ctx); err != nil {
			s.logger.Error("coordination server error", "error", err)
		}
	}()
	return nil
}

// Serve accepts connections until the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("coordserver: Serve called before Listen")
	}

	for {
		nc, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		c := newConn(nc, s.cfg.CommandRate)
		if !s.track(c) {
			c.Close()
			return nil
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			s.serveConn(ctx, c)
		}()
	}
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// Shutdown closes the listener and every connection, then waits for the
// connection goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	s.mu.Lock()
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) serveConn(ctx context.Context, c *Conn) {
	defer c.release()
	defer c.Close()

	readTimeout := orDefault(s.cfg.ReadTimeout, 30*time.Second)
	writeTimeout := orDefault(s.cfg.WriteTimeout, 30*time.Second)
	idleTimeout := s.cfg.IdleTimeout

	for {
		// Wait for the first byte of the next command.
		var idleDeadline time.Time
		if idleTimeout > 0 && !c.subscribeMode() {
			idleDeadline = time.Now().Add(idleTimeout)
		}
		if err := c.netConn.SetReadDeadline(idleDeadline); err != nil {
			return
		}
		if _, err := c.br.Peek(1); err != nil {
			s.logReadError(c, err)
			return
		}

		if err := c.netConn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}

		args, err := ReadCommand(c.br)
		if err != nil {
			if errors.Is(err, io.EOF) || isTimeout(err) {
				s.logReadError(c, err)
				return
			}
			msg := "ERR Protocol error: " + err.Error()
			if errors.Is(err, ErrLimitExceeded) {
				s.logger.Warn("protocol limit exceeded", "remote", c.RemoteAddr(), "error", err)
				msg = "ERR Protocol error: limit exceeded"
			}
			c.wmu.Lock()
			_ = c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.w.Error(msg)
			_ = c.w.Flush()
			c.wmu.Unlock()
			return
		}
		if len(args) == 0 {
			continue
		}

		c.wmu.Lock()
		quit := s.handler.Handle(ctx, c, args)
		_ = c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = c.w.Flush()
		c.wmu.Unlock()

		if err != nil || quit {
			return
		}
	}
}

// push writes a pub/sub message to a subscribed connection.
func (s *Server) push(c *Conn, channel string, payload []byte) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.closed.Load() {
		return
	}
	_ = c.netConn.SetWriteDeadline(time.Now().Add(orDefault(s.cfg.WriteTimeout, 30*time.Second)))
	c.w.ArrayHeader(3)
	c.w.BulkString("message")
	c.w.BulkString(channel)
	c.w.Bulk(payload)
	if err := c.w.Flush(); err != nil {
		s.logger.Debug("push failed, closing subscriber", "remote", c.RemoteAddr(), "error", err)
		_ = c.netConn.Close()
	}
}

func (s *Server) logReadError(c *Conn, err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	case isTimeout(err):
		s.logger.Debug("connection timed out", "remote", c.RemoteAddr())
	default:
		s.logger.Debug("connection read error", "remote", c.RemoteAddr(), "error", err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
