package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yndnr/roomrelay/internal/infra/buildinfo"
	"github.com/yndnr/roomrelay/internal/server/httpserver/handler"
)

// DefaultTimeout bounds one request.
const DefaultTimeout = 30 * time.Second

// HTTPClient talks to a roomrelay server.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithTLSConfig sets the TLS configuration for https servers.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *HTTPClient) {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = cfg
		c.client.Transport = transport
	}
}

// NewHTTPClient creates a client for server, which may omit the scheme.
func NewHTTPClient(server string, opts ...Option) *HTTPClient {
	baseURL := strings.TrimRight(server, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	c := &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, "", nil)
}

// Post performs a POST request with a raw body.
func (c *HTTPClient) Post(ctx context.Context, path, contentType string, body []byte) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, contentType, bytes.NewReader(body))
}

func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", "roomrelay-cli/"+buildinfo.Version)
	return c.client.Do(req)
}

// Publish sends payload to every member of room and reports how many
// connections received it.
func (c *HTTPClient) Publish(ctx context.Context, room string, payload []byte) (*handler.PublishResponse, error) {
	resp, err := c.Post(ctx, roomPath(room)+"/messages", "application/octet-stream", payload)
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	var out handler.PublishResponse
	if err := ParseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Room returns the fleet-wide connection count of room.
func (c *HTTPClient) Room(ctx context.Context, room string) (*handler.RoomResponse, error) {
	resp, err := c.Get(ctx, roomPath(room))
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	var out handler.RoomResponse
	if err := ParseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health queries /health, or /ready when ready is set.
func (c *HTTPClient) Health(ctx context.Context, ready bool) (*handler.HealthResponse, error) {
	path := "/health"
	if ready {
		path = "/ready"
	}
	resp, err := c.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}

	var out handler.HealthResponse
	if err := ParseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func roomPath(room string) string {
	return "/rooms/" + url.PathEscape(room)
}

// APIError is a failed API call.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.RequestID != "" {
		msg += " (request_id " + e.RequestID + ")"
	}
	return msg
}

// envelope mirrors handler.Response with the payload left undecoded.
type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// ParseResponse decodes the envelope and unmarshals its data into target.
// It always closes the body.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 400 {
		if decodeErr != nil {
			return &APIError{Status: resp.StatusCode}
		}
		return &APIError{
			Status:    resp.StatusCode,
			Code:      env.Code,
			Message:   env.Message,
			RequestID: env.RequestID,
		}
	}
	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}

	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}
