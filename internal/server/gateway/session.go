package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/roomrelay/internal/fanout"
)

var (
	errSessionClosed = errors.New("gateway: session closed")
	errSlowConsumer  = errors.New("gateway: send queue full")
)

// session is one accepted websocket connection.
type session struct {
	id   string
	conn *websocket.Conn

	writeTimeout time.Duration
	pingInterval time.Duration

	send      chan outboundFrame
	done      chan struct{}
	closeOnce sync.Once
}

var _ fanout.Session = (*session)(nil)

func newSession(id string, conn *websocket.Conn, cfg Config) *session {
	return &session{
		id:           id,
		conn:         conn,
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		send:         make(chan outboundFrame, cfg.SendQueue),
		done:         make(chan struct{}),
	}
}

// ID implements fanout.Session.
func (s *session) ID() string {
	return s.id
}

// Send implements fanout.Session. It never blocks: a session that cannot
// keep up loses the message.
func (s *session) Send(group string, payload []byte) error {
	f := outboundFrame{
		Type:    FrameRoomUpdate,
		Room:    group,
		Payload: updatePayload(payload),
	}
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}
	if !s.enqueue(f) {
		return errSlowConsumer
	}
	return nil
}

func (s *session) enqueue(f outboundFrame) bool {
	select {
	case <-s.done:
		return false
	case s.send <- f:
		return true
	default:
		return false
	}
}

// writePump owns every data write on the connection.
func (s *session) writePump() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case f := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteJSON(f); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// goAway tells the client the server is going away and closes the socket,
// which ends the read loop.
func (s *session) goAway() {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(time.Second))
	_ = s.conn.Close()
}
