package command

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/roomrelay/internal/server/config"
	"github.com/yndnr/roomrelay/internal/server/httpserver/handler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runApp runs the CLI with args and returns what it wrote to stdout.
func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return runAppContext(context.Background(), t, stdin, args...)
}

func runAppContext(ctx context.Context, t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.RunContext(ctx, append([]string{"roomrelay"}, args...))
	return out.String(), err
}

// mockServer serves canned envelopes keyed by "METHOD /path".
type mockServer struct {
	*httptest.Server
	handlers map[string]http.HandlerFunc
}

func newMockServer(t *testing.T) *mockServer {
	m := &mockServer{handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := m.handlers[r.Method+" "+r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mockServer) handle(pattern string, h http.HandlerFunc) {
	m.handlers[pattern] = h
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(handler.NewResponse("req-test", data))
}

func errorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(handler.NewErrorResponse("req-test", code, message))
}

// testServerConfig is a single-process configuration on ephemeral ports.
func testServerConfig() *config.ServerConfig {
	cfg := config.Default()
	cfg.Server.HTTP.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Coord.Backend = config.BackendMemory
	cfg.Log.Level = "error"
	return cfg
}

// startTestServer starts a relay process and stops it when the test ends.
func startTestServer(t *testing.T, cfg *config.ServerConfig) *Server {
	t.Helper()
	srv, err := StartServer(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("StartServer() error = %v", err)
	}
	t.Cleanup(func() {
		srv.Stop()
		if err := srv.Wait(context.Background()); err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	})
	return srv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
