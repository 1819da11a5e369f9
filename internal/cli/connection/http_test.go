package connection

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/roomrelay/internal/server/httpserver/handler"
)

func writeEnvelope(w http.ResponseWriter, status int, resp *handler.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name   string
		server string
		want   string
	}{
		{"with http prefix", "http://localhost:8080", "http://localhost:8080"},
		{"with https prefix", "https://localhost:8080", "https://localhost:8080"},
		{"without prefix", "localhost:8080", "http://localhost:8080"},
		{"trailing slash", "http://relay.example/", "http://relay.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewHTTPClient(tt.server).BaseURL(); got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithTimeout(t *testing.T) {
	c := NewHTTPClient("localhost", WithTimeout(time.Second))
	if c.client.Timeout != time.Second {
		t.Errorf("Timeout = %v, want 1s", c.client.Timeout)
	}
}

func TestHTTPClient_Publish(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.URL.EscapedPath() != "/rooms/team%20a/messages" {
			t.Errorf("path = %q", r.URL.EscapedPath())
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "roomrelay-cli/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"text":"hi"}` {
			t.Errorf("body = %q", body)
		}
		writeEnvelope(w, http.StatusOK, handler.NewResponse("req-1",
			handler.PublishResponse{Room: "team a", Receivers: 4}))
	}))
	defer server.Close()

	got, err := NewHTTPClient(server.URL).Publish(context.Background(), "team a", []byte(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got.Room != "team a" || got.Receivers != 4 {
		t.Errorf("Publish() = %+v", got)
	}
}

func TestHTTPClient_Room(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/rooms/lobby" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		writeEnvelope(w, http.StatusOK, handler.NewResponse("req-2",
			handler.RoomResponse{Room: "lobby", Connections: 7}))
	}))
	defer server.Close()

	got, err := NewHTTPClient(server.URL).Room(context.Background(), "lobby")
	if err != nil {
		t.Fatalf("Room() error = %v", err)
	}
	if got.Connections != 7 {
		t.Errorf("Connections = %d, want 7", got.Connections)
	}
}

func TestHTTPClient_Health(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		writeEnvelope(w, http.StatusOK, handler.NewResponse("", map[string]string{"status": "ok-" + r.URL.Path}))
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL)
	live, err := c.Health(context.Background(), false)
	if err != nil {
		t.Fatalf("Health(false) error = %v", err)
	}
	ready, err := c.Health(context.Background(), true)
	if err != nil {
		t.Fatalf("Health(true) error = %v", err)
	}

	if live.Status != "ok-/health" || ready.Status != "ok-/ready" {
		t.Errorf("statuses = %q, %q", live.Status, ready.Status)
	}
	if len(paths) != 2 {
		t.Errorf("requests = %v", paths)
	}
}

func TestParseResponse_Error(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "envelope",
			status:   http.StatusRequestEntityTooLarge,
			body:     `{"code":"RR-ARG-4002","message":"payload too large","request_id":"req-9"}`,
			wantCode: "RR-ARG-4002",
			wantMsg:  "[RR-ARG-4002] payload too large (request_id req-9)",
		},
		{
			name:    "not json",
			status:  http.StatusBadGateway,
			body:    `upstream down`,
			wantMsg: "request failed with status 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			resp, err := http.Get(server.URL)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			err = ParseResponse(resp, nil)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.Status != tt.status || apiErr.Code != tt.wantCode {
				t.Errorf("APIError = %+v", apiErr)
			}
			if apiErr.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", apiErr.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParseResponse_NilTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, handler.NewResponse("", "ignored"))
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if err := ParseResponse(resp, nil); err != nil {
		t.Errorf("ParseResponse(nil target) error = %v", err)
	}
}

func TestParseResponse_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":`))
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if err := ParseResponse(resp, &handler.HealthResponse{}); err == nil {
		t.Error("expected parse error")
	}
}
