package httpserver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/roomrelay/internal/server/httpserver/handler"
	"github.com/yndnr/roomrelay/internal/telemetry/metric"
)

type fakeRooms struct {
	last    string
	payload string
	count   int64
}

func (f *fakeRooms) Publish(_ context.Context, room string, payload []byte) (int64, error) {
	f.last = room
	f.payload = string(payload)
	return 3, nil
}

func (f *fakeRooms) MaxPayload() int { return 1024 }

func (f *fakeRooms) Count(_ context.Context, room string) (int64, error) {
	f.last = room
	return f.count, nil
}

func TestNew(t *testing.T) {
	s := New(":8080", okHandler())
	if s == nil {
		t.Fatal("New returned nil")
	}
	if s.httpServer == nil {
		t.Error("httpServer is nil")
	}
	if s.httpServer.ReadHeaderTimeout == 0 {
		t.Error("ReadHeaderTimeout should be set")
	}
}

func TestServer_Shutdown(t *testing.T) {
	s := New("", okHandler())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}

	select {
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			t.Errorf("Serve returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for Serve to return")
	}
}

func TestServer_ServeTLS(t *testing.T) {
	// Borrow httptest's self-signed certificate and the client that trusts it.
	ref := httptest.NewTLSServer(okHandler())
	defer ref.Close()
	client := ref.Client()

	s := New("", okHandler())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	cfg := &tls.Config{Certificates: ref.TLS.Certificates}
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.ServeTLS(ln, cfg)
	}()

	resp, err := client.Get("https://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.TLS == nil {
		t.Error("response was not served over TLS")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}
	if err := <-errChan; err != http.ErrServerClosed {
		t.Errorf("ServeTLS returned %v, want ErrServerClosed", err)
	}
}

func TestDefaultRouterConfig(t *testing.T) {
	cfg := DefaultRouterConfig()
	if cfg == nil {
		t.Fatal("DefaultRouterConfig returned nil")
	}
	if cfg.GlobalRateLimit <= 0 {
		t.Error("GlobalRateLimit should be positive")
	}
	if !cfg.EnableAudit {
		t.Error("EnableAudit should default to true")
	}
}

func newTestRouter(rooms *fakeRooms) http.Handler {
	cfg := DefaultRouterConfig()
	cfg.Publisher = rooms
	cfg.Counter = rooms
	cfg.Logger = discardLogger()
	cfg.Metrics = metric.NewRegistry().Handler()
	cfg.Gateway = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	return NewRouter(cfg)
}

func TestNewRouter_Routes(t *testing.T) {
	rooms := &fakeRooms{count: 7}
	srv := httptest.NewServer(newTestRouter(rooms))
	defer srv.Close()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"health", "GET", "/health", "", http.StatusOK},
		{"ready", "GET", "/ready", "", http.StatusOK},
		{"metrics", "GET", "/metrics", "", http.StatusOK},
		{"room count", "GET", "/rooms/lobby", "", http.StatusOK},
		{"publish", "POST", "/rooms/lobby/messages", `{"hello":1}`, http.StatusOK},
		{"preflight", "OPTIONS", "/rooms/lobby/messages", "", http.StatusNoContent},
		{"gateway", "GET", "/ws", "", http.StatusTeapot},
		{"unknown", "GET", "/nope", "", http.StatusNotFound},
		{"wrong method", "DELETE", "/rooms/lobby", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("NewRequest: %v", err)
			}
			req.Header.Set("Origin", "https://app.example")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_PublishEnvelope(t *testing.T) {
	rooms := &fakeRooms{}
	srv := httptest.NewServer(newTestRouter(rooms))
	defer srv.Close()

	req, _ := http.NewRequest("POST", srv.URL+"/rooms/lobby/messages", strings.NewReader("hi"))
	req.Header.Set("X-Request-ID", "router-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "router-1" {
		t.Errorf("X-Request-ID = %q, want router-1", got)
	}

	var body struct {
		handler.Response
		Data handler.PublishResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RequestID != "router-1" {
		t.Errorf("request_id = %q, want router-1", body.RequestID)
	}
	if body.Data.Room != "lobby" || body.Data.Receivers != 3 {
		t.Errorf("data = %+v, want lobby/3", body.Data)
	}
	if rooms.payload != "hi" {
		t.Errorf("payload = %q, want hi", rooms.payload)
	}
}

func TestNewRouter_MetricsOptional(t *testing.T) {
	h := NewRouter(&RouterConfig{Publisher: &fakeRooms{}, Counter: &fakeRooms{}, Logger: discardLogger()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/metrics without registry: status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/ws without gateway: status = %d, want 404", rec.Code)
	}
}
