package metric

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.ConnectionsActive == nil || r.Subscribes == nil || r.Deliveries == nil {
		t.Error("metrics not initialized")
	}
}

func TestGlobal(t *testing.T) {
	if Global() != Global() {
		t.Error("Global() should return the same instance")
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.IncJoin()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	bodyStr := string(body)

	for _, want := range []string{"go_goroutines", "process_", "roomrelay_joins_total 1"} {
		if !strings.Contains(bodyStr, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)

	var total float64
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		switch {
		case pb.Counter != nil:
			total += pb.Counter.GetValue()
		case pb.Gauge != nil:
			total += pb.Gauge.GetValue()
		}
	}
	return total
}

func TestConnectionMetrics(t *testing.T) {
	r := NewRegistry()

	r.ConnectionOpened()
	r.ConnectionOpened()
	r.ConnectionClosed()

	if got := counterValue(t, r.ConnectionsActive); got != 1 {
		t.Errorf("connections_active = %v, want 1", got)
	}
}

func TestResultLabels(t *testing.T) {
	r := NewRegistry()

	r.ObserveSubscribe(nil)
	r.ObserveSubscribe(nil)
	r.ObserveSubscribe(errors.New("timeout"))
	r.ObserveDelivery(errors.New("closed"))
	r.IncStoreError("counter_increment")

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"subscribe ok", r.Subscribes.WithLabelValues(ResultOK), 2},
		{"subscribe error", r.Subscribes.WithLabelValues(ResultError), 1},
		{"delivery error", r.Deliveries.WithLabelValues(ResultError), 1},
		{"store error", r.StoreErrors.WithLabelValues("counter_increment"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, tt.c); got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNilRegistry(t *testing.T) {
	var r *Registry

	// Recording on a nil registry is a no-op.
	r.ConnectionOpened()
	r.ConnectionClosed()
	r.IncJoin()
	r.IncLeave()
	r.ObserveSubscribe(nil)
	r.ObserveUnsubscribe(nil)
	r.IncMessageReceived()
	r.ObserveDelivery(nil)
	r.ObservePublish(nil)
	r.IncStoreError("op")
}
