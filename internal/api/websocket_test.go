package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/iotlink/internal/infrastructure/config"
	"github.com/nerrad567/iotlink/internal/infrastructure/logging"
)

func testHub() *Hub {
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
	return NewHub(config.StreamConfig{MaxMessageSize: 1024, PingInterval: 30, PongTimeout: 10}, log)
}

// dialStream connects to the event stream and waits until the hub has
// registered the client.
func dialStream(t *testing.T, hub *Hub, query string) *websocket.Conn {
	t.Helper()

	srv := testServer(t, Deps{Hub: hub})
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events/stream" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

// =============================================================================
// Event stream
// =============================================================================

func TestEventStream_ReceivesEvents(t *testing.T) {
	hub := testHub()
	conn := dialStream(t, hub, "")

	hub.RecordEvent("session", "connected", map[string]any{"server": "broker.local"})

	msg := readMessage(t, conn)
	if msg.Type != StreamTypeEvent || msg.Channel != "session" {
		t.Fatalf("message = %+v, want session event", msg)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok || payload["event"] != "connected" {
		t.Errorf("payload = %v, want connected event", msg.Payload)
	}
}

func TestEventStream_ChannelFilter(t *testing.T) {
	hub := testHub()
	conn := dialStream(t, hub, "?channels=node")

	hub.RecordEvent("session", "connected", nil)
	hub.RecordEvent("node", "reset_requested", nil)

	msg := readMessage(t, conn)
	if msg.Channel != "node" {
		t.Errorf("first message channel = %q, want node (session filtered)", msg.Channel)
	}
}

func TestEventStream_SubscribeAndPing(t *testing.T) {
	hub := testHub()
	conn := dialStream(t, hub, "?channels=node")

	sub := StreamMessage{Type: StreamTypeSubscribe, ID: "1", Payload: StreamSubscribePayload{Channels: []string{"network"}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != StreamTypeResponse || msg.ID != "1" {
		t.Fatalf("subscribe response = %+v", msg)
	}

	if err := conn.WriteJSON(StreamMessage{Type: StreamTypePing, ID: "2"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != StreamTypePong || msg.ID != "2" {
		t.Fatalf("ping response = %+v", msg)
	}

	hub.RecordEvent("network", "associated", nil)
	if msg := readMessage(t, conn); msg.Channel != "network" {
		t.Errorf("channel = %q, want network after subscribe", msg.Channel)
	}
}

func TestEventStream_UnknownMessage(t *testing.T) {
	hub := testHub()
	conn := dialStream(t, hub, "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus","id":"9"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != StreamTypeError || msg.ID != "9" {
		t.Errorf("response = %+v, want error", msg)
	}
}

func TestEventStream_NotConfigured(t *testing.T) {
	srv := testServer(t, Deps{})

	rec := do(t, srv, http.MethodGet, "/api/v1/events/stream", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHub_RunClosesClients(t *testing.T) {
	hub := testHub()
	conn := dialStream(t, hub, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after Run returned, want 0", hub.ClientCount())
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after hub shutdown")
	}
}

func TestInitialChannels(t *testing.T) {
	if got := initialChannels(""); len(got) != 1 {
		t.Errorf("initialChannels(\"\") = %v, want all", got)
	} else if _, ok := got[ChannelAll]; !ok {
		t.Errorf("initialChannels(\"\") = %v, want all", got)
	}
	if got := initialChannels("network, session,"); len(got) != 2 {
		t.Errorf("initialChannels() = %v, want network and session", got)
	}
}

// =============================================================================
// Metrics
// =============================================================================

type fakeDB struct{}

func (fakeDB) Stats() sql.DBStats { return sql.DBStats{OpenConnections: 1, Idle: 1} }

type fakeDrops uint64

func (d fakeDrops) Dropped() uint64 { return uint64(d) }

func TestMetrics(t *testing.T) {
	srv := testServer(t, Deps{
		Hub:   testHub(),
		DB:    fakeDB{},
		Drops: map[string]DropCounter{"audit": fakeDrops(3)},
	})

	rec := do(t, srv, http.MethodGet, "/api/v1/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got SystemMetrics
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.Version != "test" || got.Runtime.Goroutines == 0 {
		t.Errorf("metrics = %+v", got)
	}
	if got.Database == nil || got.Database.OpenConnections != 1 {
		t.Errorf("Database = %+v, want pool stats", got.Database)
	}
	if got.Dropped["audit"] != 3 {
		t.Errorf("Dropped = %v, want audit=3", got.Dropped)
	}
}
