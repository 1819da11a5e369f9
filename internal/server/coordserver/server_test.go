package coordserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/roomrelay/internal/coord/memstore"
)

type respError string

// testClient speaks raw RESP to the server.
type testClient struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func startServer(t *testing.T, mutate func(*Config)) (*Server, *memstore.Store) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	if mutate != nil {
		mutate(cfg)
	}
	store := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(cfg, store, logger)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = store.Close()
	})
	return srv, store
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, br: bufio.NewReader(conn)}
}

func (c *testClient) send(args ...string) {
	c.t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "*%d\r\n", len(args))
	for _, a := range args {
		fmt.Fprintf(&b, "$%d\r\n%s\r\n", len(a), a)
	}
	if _, err := c.conn.Write([]byte(b.String())); err != nil {
		c.t.Fatalf("write error = %v", err)
	}
}

func (c *testClient) do(args ...string) any {
	c.t.Helper()
	c.send(args...)
	return c.read()
}

func (c *testClient) read() any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	v, err := readReply(c.br)
	if err != nil {
		c.t.Fatalf("read reply error = %v", err)
	}
	return v
}

func readReply(br *bufio.Reader) (any, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimSuffix(line, "\r\n")
	if line == "" {
		return nil, errors.New("empty reply line")
	}
	switch line[0] {
	case '+':
		return line[1:], nil
	case '-':
		return respError(line[1:]), nil
	case ':':
		n, err := strconv.ParseInt(line[1:], 10, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case '$':
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, nil
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, err
		}
		return string(buf[:n]), nil
	case '*':
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			v, err := readReply(br)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected reply %q", line)
}

func expectReply(t *testing.T, got, want any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("reply = %#v, want %#v", got, want)
	}
}

func expectErrorPrefix(t *testing.T, got any, prefix string) {
	t.Helper()
	e, ok := got.(respError)
	if !ok || !strings.HasPrefix(string(e), prefix) {
		t.Errorf("reply = %#v, want error starting with %q", got, prefix)
	}
}

func TestServer_Ping(t *testing.T) {
	srv, _ := startServer(t, nil)
	c := dial(t, srv)

	expectReply(t, c.do("PING"), "PONG")
	expectReply(t, c.do("ping", "hello"), "hello")
}

func TestServer_SetCommands(t *testing.T) {
	srv, _ := startServer(t, nil)
	c := dial(t, srv)

	expectReply(t, c.do("SADD", "subscribed-rooms", "lobby", "games"), int64(2))
	expectReply(t, c.do("SADD", "subscribed-rooms", "lobby"), int64(0))
	expectReply(t, c.do("SMEMBERS", "subscribed-rooms"), []any{"games", "lobby"})
	expectReply(t, c.do("SISMEMBER", "subscribed-rooms", "lobby"), int64(1))
	expectReply(t, c.do("SREM", "subscribed-rooms", "lobby", "nope"), int64(1))
	expectReply(t, c.do("SISMEMBER", "subscribed-rooms", "lobby"), int64(0))
	expectReply(t, c.do("DEL", "subscribed-rooms", "missing"), int64(1))
	expectReply(t, c.do("SMEMBERS", "subscribed-rooms"), []any{})
}

func TestServer_HashCommands(t *testing.T) {
	srv, _ := startServer(t, nil)
	c := dial(t, srv)

	expectReply(t, c.do("HINCRBY", "room-connections", "lobby", "1"), int64(1))
	expectReply(t, c.do("HINCRBY", "room-connections", "lobby", "2"), int64(3))
	expectReply(t, c.do("HINCRBY", "room-connections", "lobby", "-1"), int64(2))
	expectReply(t, c.do("HGET", "room-connections", "lobby"), "2")
	expectReply(t, c.do("HGET", "room-connections", "games"), nil)
	expectReply(t, c.do("HDEL", "room-connections", "lobby", "games"), int64(1))
	expectReply(t, c.do("HGET", "room-connections", "lobby"), nil)

	expectErrorPrefix(t, c.do("HINCRBY", "room-connections", "lobby", "x"), "ERR value is not an integer")
}

func TestServer_HIncrByOverflow(t *testing.T) {
	srv, _ := startServer(t, nil)
	c := dial(t, srv)

	expectReply(t, c.do("HINCRBY", "room-connections", "lobby", "9223372036854775807"), int64(math.MaxInt64))
	expectReply(t, c.do("HINCRBY", "room-connections", "lobby", "1"), respError("ERR increment or decrement would overflow"))
	expectReply(t, c.do("HGET", "room-connections", "lobby"), "9223372036854775807")
}

func TestServer_WrongType(t *testing.T) {
	srv, _ := startServer(t, nil)
	c := dial(t, srv)

	c.do("SADD", "k", "a")
	expectErrorPrefix(t, c.do("HINCRBY", "k", "f", "1"), "WRONGTYPE")
}

func TestServer_Errors(t *testing.T) {
	srv, _ := startServer(t, nil)
	c := dial(t, srv)

	tests := []struct {
		name   string
		args   []string
		prefix string
	}{
		{"unknown command", []string{"FLUSHALL"}, "ERR unknown command"},
		{"arity exact", []string{"SMEMBERS"}, "ERR wrong number of arguments"},
		{"arity minimum", []string{"SADD", "k"}, "ERR wrong number of arguments"},
		{"hello", []string{"HELLO", "3"}, "NOPROTO"},
		{"select non-zero", []string{"SELECT", "1"}, "ERR DB index"},
		{"auth without password", []string{"AUTH", "secret"}, "ERR AUTH"},
		{"subscribe without channel", []string{"SUBSCRIBE"}, "ERR wrong number of arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectErrorPrefix(t, c.do(tt.args...), tt.prefix)
		})
	}

	// The connection survives command errors.
	expectReply(t, c.do("SELECT", "0"), "OK")
	expectReply(t, c.do("CLIENT", "SETNAME", "relay"), "OK")
}

func TestServer_Auth(t *testing.T) {
	srv, _ := startServer(t, func(cfg *Config) { cfg.Password = "s3cret" })
	c := dial(t, srv)

	expectErrorPrefix(t, c.do("PING"), "NOAUTH")
	expectErrorPrefix(t, c.do("AUTH", "wrong"), "WRONGPASS")
	expectReply(t, c.do("AUTH", "default", "s3cret"), "OK")
	expectReply(t, c.do("PING"), "PONG")
}

func TestServer_PubSub(t *testing.T) {
	srv, _ := startServer(t, nil)
	sub := dial(t, srv)
	pub := dial(t, srv)

	expectReply(t, sub.do("SUBSCRIBE", "lobby", "games"), []any{"subscribe", "lobby", int64(1)})
	expectReply(t, sub.read(), []any{"subscribe", "games", int64(2)})

	expectReply(t, pub.do("PUBLISH", "lobby", "hello"), int64(1))
	expectReply(t, sub.read(), []any{"message", "lobby", "hello"})

	expectReply(t, pub.do("PUBLISH", "nobody", "x"), int64(0))

	// Subscribe mode restricts the command set.
	expectErrorPrefix(t, sub.do("SMEMBERS", "k"), "ERR Can't execute")
	expectReply(t, sub.do("PING"), []any{"pong", ""})

	expectReply(t, sub.do("UNSUBSCRIBE", "lobby"), []any{"unsubscribe", "lobby", int64(1)})
	expectReply(t, pub.do("PUBLISH", "lobby", "gone"), int64(0))

	expectReply(t, sub.do("UNSUBSCRIBE"), []any{"unsubscribe", "games", int64(0)})

	// Back to normal mode.
	expectReply(t, sub.do("SMEMBERS", "k"), []any{})
	expectReply(t, sub.do("UNSUBSCRIBE"), []any{"unsubscribe", nil, int64(0)})
}

func TestServer_SubscriberDisconnectDetaches(t *testing.T) {
	srv, store := startServer(t, nil)
	sub := dial(t, srv)

	expectReply(t, sub.do("SUBSCRIBE", "lobby"), []any{"subscribe", "lobby", int64(1)})
	if n := store.NumSubscribers("lobby"); n != 1 {
		t.Fatalf("NumSubscribers = %d, want 1", n)
	}

	sub.conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for store.NumSubscribers("lobby") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_Quit(t *testing.T) {
	srv, _ := startServer(t, nil)
	c := dial(t, srv)

	expectReply(t, c.do("QUIT"), "OK")
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.br.ReadByte(); err != io.EOF {
		t.Errorf("read after QUIT error = %v, want EOF", err)
	}
}

func TestServer_ProtocolErrorCloses(t *testing.T) {
	srv, _ := startServer(t, nil)
	c := dial(t, srv)

	if _, err := c.conn.Write([]byte("*1\r\n$x\r\n")); err != nil {
		t.Fatal(err)
	}
	expectErrorPrefix(t, c.read(), "ERR Protocol error")
	if _, err := c.br.ReadByte(); err != io.EOF {
		t.Errorf("read after protocol error = %v, want EOF", err)
	}
}

func TestServer_CommandRate(t *testing.T) {
	srv, _ := startServer(t, func(cfg *Config) { cfg.CommandRate = 2 })
	c := dial(t, srv)

	expectReply(t, c.do("PING"), "PONG")
	expectReply(t, c.do("PING"), "PONG")
	expectErrorPrefix(t, c.do("PING"), "ERR RR-SYS-4290")
}

func TestServer_Shutdown(t *testing.T) {
	srv, _ := startServer(t, nil)
	c := dial(t, srv)
	expectReply(t, c.do("PING"), "PONG")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.br.ReadByte(); err == nil {
		t.Error("connection should be closed after Shutdown")
	}
}
