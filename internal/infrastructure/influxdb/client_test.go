package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/iotlink/internal/infrastructure/config"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu          sync.Mutex
	lines       []string
	pingStatus  int
	writeStatus int
}

func newFakeInflux(t *testing.T) (*fakeInflux, *httptest.Server) {
	t.Helper()

	f := &fakeInflux{pingStatus: http.StatusNoContent, writeStatus: http.StatusNoContent}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(f.pingStatus)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			status := f.writeStatus
			f.mu.Unlock()
			if status != http.StatusNoContent {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				io.WriteString(w, `{"code":"invalid","message":"rejected"}`)
				return
			}
			w.WriteHeader(status)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// waitForLines polls until n lines have arrived; writes are asynchronous
// even after Flush.
func (f *fakeInflux) waitForLines(t *testing.T, n int) []string {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		lines := f.written()
		if len(lines) >= n || time.Now().After(deadline) {
			return lines
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "iotlink-dev-token",
		Org:           "iotlink",
		Bucket:        "connectivity",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, url string) *Client {
	t.Helper()

	c, err := Connect(context.Background(), testConfig(url), "greenhouse-01")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// =============================================================================
// Connect
// =============================================================================

func TestConnect(t *testing.T) {
	_, srv := newFakeInflux(t)
	c := connect(t, srv.URL)

	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	if _, err := Connect(context.Background(), cfg, "dev"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, srv := newFakeInflux(t)
	url := srv.URL
	srv.Close()

	if _, err := Connect(context.Background(), testConfig(url), "dev"); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_PingRejected(t *testing.T) {
	f, srv := newFakeInflux(t)
	f.pingStatus = http.StatusServiceUnavailable

	if _, err := Connect(context.Background(), testConfig(srv.URL), "dev"); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPositiveDefaults(t *testing.T) {
	if got := positive(-5, 100); got != 100 {
		t.Errorf("positive(-5) = %d, want 100", got)
	}
	if got := positive(7, 100); got != 7 {
		t.Errorf("positive(7) = %d, want 7", got)
	}
	if got := positiveDuration(0, 10*time.Second); got != 10*time.Second {
		t.Errorf("positiveDuration(0) = %v, want 10s", got)
	}
	if got := positiveDuration(2, 10*time.Second); got != 2*time.Second {
		t.Errorf("positiveDuration(2) = %v, want 2s", got)
	}
}

// =============================================================================
// Events
// =============================================================================

func TestRecordEvent_WritesLineProtocol(t *testing.T) {
	f, srv := newFakeInflux(t)
	c := connect(t, srv.URL)

	c.RecordEvent("session", "connected", map[string]any{"server": "broker.local"})
	c.RecordEvent("network", "associated", nil)
	c.Flush()

	lines := f.waitForLines(t, 2)
	if len(lines) != 2 {
		t.Fatalf("written lines = %v, want 2", lines)
	}
	want := "connection_events,component=session,device=greenhouse-01,event=connected "
	var session string
	for _, line := range lines {
		if strings.HasPrefix(line, want) {
			session = line
		}
	}
	if session == "" {
		t.Fatalf("no line with prefix %q in %v", want, lines)
	}
	if !strings.Contains(session, "count=1i") || !strings.Contains(session, `server="broker.local"`) {
		t.Errorf("line = %q, want count and server fields", session)
	}
	if c.Written() != 2 {
		t.Errorf("Written() = %d, want 2", c.Written())
	}
}

func TestRecordEvent_WriteErrorReported(t *testing.T) {
	f, srv := newFakeInflux(t)
	f.writeStatus = http.StatusBadRequest
	c := connect(t, srv.URL)

	errCh := make(chan error, 1)
	c.SetOnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	c.RecordEvent("session", "connect_failed", map[string]any{"return_code": 5})
	c.Flush()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("onError called with nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error not reported")
	}
}

func TestClose(t *testing.T) {
	f, srv := newFakeInflux(t)
	c, err := Connect(context.Background(), testConfig(srv.URL), "dev")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	c.RecordEvent("session", "connected", nil)
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if lines := f.waitForLines(t, 1); len(lines) != 1 {
		t.Errorf("pending point not flushed on Close: %v", lines)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	c.RecordEvent("session", "connected", nil)
	if c.Written() != 1 {
		t.Errorf("Written() = %d, want events after Close ignored", c.Written())
	}
}

func TestZeroClient(t *testing.T) {
	var c Client

	c.RecordEvent("session", "connected", nil)
	c.Flush()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
