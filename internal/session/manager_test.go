package session

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/iotlink/internal/infrastructure/mqtt"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeClient struct {
	host      string
	port      int
	keepAlive time.Duration
	begins    int

	// connectResult decides each Connect outcome; nil means success.
	connectResult func(attempt int) bool
	connectCalls  int
	connected     bool

	subscribes    []string
	failSubscribe map[string]bool
	publishes     []fakePublish
	loops         int
	disconnects   int

	returnCode mqtt.ReturnCode
	lastError  mqtt.ErrorCode
	handler    mqtt.MessageHandler
}

type fakePublish struct {
	topic   string
	payload string
}

func (f *fakeClient) Begin(host string, port int) {
	f.host = host
	f.port = port
	f.begins++
}

func (f *fakeClient) SetKeepAlive(d time.Duration) { f.keepAlive = d }

func (f *fakeClient) Connect(string, string, string) bool {
	f.connectCalls++
	ok := true
	if f.connectResult != nil {
		ok = f.connectResult(f.connectCalls)
	}
	f.connected = ok
	if ok {
		f.returnCode, f.lastError = mqtt.ReturnAccepted, mqtt.ErrorSuccess
	} else {
		f.returnCode, f.lastError = mqtt.ReturnServerUnavailable, mqtt.ErrorNetworkFailedConnect
	}
	return ok
}

func (f *fakeClient) Disconnect() bool {
	f.disconnects++
	was := f.connected
	f.connected = false
	return was
}

func (f *fakeClient) Subscribe(topic string) bool {
	f.subscribes = append(f.subscribes, topic)
	return f.connected && !f.failSubscribe[topic]
}

func (f *fakeClient) Publish(topic string, payload []byte) bool {
	f.publishes = append(f.publishes, fakePublish{topic: topic, payload: string(payload)})
	return f.connected
}

func (f *fakeClient) Loop() bool {
	f.loops++
	return f.connected
}

func (f *fakeClient) Connected() bool                 { return f.connected }
func (f *fakeClient) ReturnCode() mqtt.ReturnCode     { return f.returnCode }
func (f *fakeClient) LastError() mqtt.ErrorCode       { return f.lastError }
func (f *fakeClient) OnMessage(h mqtt.MessageHandler) { f.handler = h }

// drop simulates the transport closing underneath the session.
func (f *fakeClient) drop() {
	f.connected = false
	f.lastError = mqtt.ErrorNetworkFailedRead
}

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func failAlways(int) bool { return false }

// failFirst fails the first n connect attempts.
func failFirst(n int) func(int) bool {
	return func(attempt int) bool { return attempt > n }
}

type fakeRecorder struct {
	events []string
}

func (r *fakeRecorder) RecordEvent(_ string, event string, _ map[string]any) {
	r.events = append(r.events, event)
}

type harness struct {
	m          *Manager
	client     *fakeClient
	clock      *fakeClock
	associated bool
}

func testConfig() Config {
	return Config{
		ClientID:          "greenhouse-01",
		Port:              1883,
		KeepAlive:         30 * time.Second,
		ReconnectInterval: 5 * time.Second,
		FloatPrecision:    3,
		BufferSize:        512,
	}
}

// newHarness returns an enabled, not yet started session.
func newHarness(t *testing.T, topics ...string) *harness {
	t.Helper()

	h := &harness{client: &fakeClient{}, clock: newFakeClock(), associated: true}
	h.m = New(h.client, testConfig())
	h.m.SetClock(h.clock)
	h.m.SetAssociationCheck(func() bool { return h.associated })

	if err := h.m.Enable(Identity{Host: "broker.local", Username: "u", Password: "p"}); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	for _, topic := range topics {
		if err := h.m.AddTopic(topic); err != nil {
			t.Fatalf("AddTopic(%q) error = %v", topic, err)
		}
	}
	h.m.Freeze()
	return h
}

// =============================================================================
// Start Tests
// =============================================================================

func TestStart_BindsEndpointOnce(t *testing.T) {
	h := newHarness(t)

	h.m.Start()
	h.client.drop()
	h.m.Start()

	if h.client.begins != 1 {
		t.Errorf("Begin calls = %d, want 1", h.client.begins)
	}
	if h.client.host != "broker.local" || h.client.port != 1883 {
		t.Errorf("endpoint = %s:%d, want broker.local:1883", h.client.host, h.client.port)
	}
	if h.client.keepAlive != 30*time.Second {
		t.Errorf("keepalive = %v, want 30s", h.client.keepAlive)
	}
	if h.client.connectCalls != 2 {
		t.Errorf("connect calls = %d, want 2", h.client.connectCalls)
	}
}

func TestStart_Unconfigured(t *testing.T) {
	client := &fakeClient{}
	m := New(client, testConfig())

	m.Start()
	m.Step()

	if client.begins != 0 || client.connectCalls != 0 {
		t.Errorf("unconfigured session touched client: begins=%d connects=%d", client.begins, client.connectCalls)
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", m.State())
	}
}

func TestStart_RespectsThrottle(t *testing.T) {
	h := newHarness(t)
	h.client.connectResult = failAlways

	h.m.Start()
	h.clock.Advance(time.Second)
	h.m.Start()

	if h.client.connectCalls != 1 {
		t.Errorf("connect calls = %d, want 1", h.client.connectCalls)
	}
}

func TestEnable(t *testing.T) {
	m := New(&fakeClient{}, testConfig())

	if err := m.Enable(Identity{}); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("Enable(empty) error = %v, want ErrInvalidIdentity", err)
	}
	if m.Configured() {
		t.Error("Configured() = true after invalid Enable")
	}

	if err := m.Enable(Identity{Host: "a"}); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	m.Start()
	if err := m.Enable(Identity{Host: "b"}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Enable() after Start error = %v, want ErrAlreadyStarted", err)
	}
}

// =============================================================================
// Subscription Tests
// =============================================================================

func TestAddTopic(t *testing.T) {
	m := New(&fakeClient{}, testConfig())

	if err := m.AddTopic(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("AddTopic(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := m.AddTopic("a"); err != nil {
		t.Fatalf("AddTopic() error = %v", err)
	}
	if err := m.AddTopic("a"); err != nil {
		t.Fatalf("AddTopic() duplicate error = %v", err)
	}

	m.Freeze()
	if err := m.AddTopic("b"); !errors.Is(err, ErrSubscriptionsFrozen) {
		t.Errorf("AddTopic() after Freeze error = %v, want ErrSubscriptionsFrozen", err)
	}
	if got := m.Topics(); !reflect.DeepEqual(got, []string{"a", "a"}) {
		t.Errorf("Topics() = %v, want [a a]", got)
	}
}

func TestSubscriptionReplay_TwoConnects(t *testing.T) {
	h := newHarness(t, "sensor/temp", "sensor/hum")

	h.m.Start()
	h.client.drop()
	h.m.Step()

	want := []string{"sensor/temp", "sensor/hum", "sensor/temp", "sensor/hum"}
	if !reflect.DeepEqual(h.client.subscribes, want) {
		t.Errorf("subscribes = %v, want %v", h.client.subscribes, want)
	}
}

func TestSubscriptionReplay_NxM(t *testing.T) {
	h := newHarness(t, "a", "b", "a")

	const connects = 3
	h.m.Start()
	for i := 1; i < connects; i++ {
		h.client.drop()
		h.m.Step()
	}

	if len(h.client.subscribes) != connects*3 {
		t.Fatalf("subscribe calls = %d, want %d", len(h.client.subscribes), connects*3)
	}
	for i, topic := range h.client.subscribes {
		if want := []string{"a", "b", "a"}[i%3]; topic != want {
			t.Errorf("subscribe[%d] = %q, want %q", i, topic, want)
		}
	}
}

func TestSubscriptionReplay_FailureDoesNotStopNext(t *testing.T) {
	h := newHarness(t, "a", "b")
	h.client.failSubscribe = map[string]bool{"a": true}

	h.m.Start()

	if !reflect.DeepEqual(h.client.subscribes, []string{"a", "b"}) {
		t.Errorf("subscribes = %v, want [a b]", h.client.subscribes)
	}
	if h.m.State() != StateConnected {
		t.Errorf("State() = %v, want connected", h.m.State())
	}
}

func TestFailedConnect_NoSubscribe(t *testing.T) {
	h := newHarness(t, "a")
	h.client.connectResult = failAlways

	h.m.Start()

	if len(h.client.subscribes) != 0 {
		t.Errorf("subscribe calls = %d after failed connect, want 0", len(h.client.subscribes))
	}
}

// =============================================================================
// Throttle Tests
// =============================================================================

func TestStep_ThrottleSuppressesEarlyRetry(t *testing.T) {
	h := newHarness(t)
	h.client.connectResult = failAlways

	h.m.Start()
	if h.client.connectCalls != 1 {
		t.Fatalf("connect calls after Start = %d, want 1", h.client.connectCalls)
	}

	h.clock.Advance(1000 * time.Millisecond)
	h.m.Step()
	if h.client.connectCalls != 1 {
		t.Errorf("connect calls 1000ms after failure = %d, want 1", h.client.connectCalls)
	}

	h.clock.Advance(3999 * time.Millisecond)
	h.m.Step()
	if h.client.connectCalls != 1 {
		t.Errorf("connect calls 4999ms after failure = %d, want 1", h.client.connectCalls)
	}

	h.clock.Advance(time.Millisecond)
	h.m.Step()
	if h.client.connectCalls != 2 {
		t.Errorf("connect calls 5000ms after failure = %d, want 2", h.client.connectCalls)
	}
}

func TestStep_AttemptSpacingProperty(t *testing.T) {
	h := newHarness(t)
	h.client.connectResult = failAlways
	h.m.Start()

	var attemptTimes []time.Time
	last := h.client.connectCalls
	attemptTimes = append(attemptTimes, h.clock.Now())

	for i := 0; i < 200; i++ {
		h.clock.Advance(time.Duration(37+i%11) * 10 * time.Millisecond)
		h.m.Step()
		if h.client.connectCalls != last {
			last = h.client.connectCalls
			attemptTimes = append(attemptTimes, h.clock.Now())
		}
	}

	if len(attemptTimes) < 3 {
		t.Fatalf("only %d attempts observed", len(attemptTimes))
	}
	for i := 1; i < len(attemptTimes); i++ {
		if gap := attemptTimes[i].Sub(attemptTimes[i-1]); gap < 5*time.Second {
			t.Errorf("attempt %d came %v after previous failure, want >= 5s", i, gap)
		}
	}
}

func TestStep_DropReconnectsImmediately(t *testing.T) {
	h := newHarness(t)
	h.m.Start()

	h.client.drop()
	h.m.Step()

	if h.client.connectCalls != 2 {
		t.Errorf("connect calls = %d, want 2 (no throttle after success)", h.client.connectCalls)
	}
	if h.m.State() != StateConnected {
		t.Errorf("State() = %v, want connected", h.m.State())
	}
}

func TestStep_NotAssociated(t *testing.T) {
	h := newHarness(t)
	h.m.Start()
	h.client.drop()
	h.associated = false

	h.m.Step()

	if h.client.connectCalls != 1 {
		t.Errorf("connect calls = %d while unassociated, want 1", h.client.connectCalls)
	}
	if h.m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", h.m.State())
	}
}

func TestStatus_DropDetectedOnStep(t *testing.T) {
	h := newHarness(t)
	h.m.Start()
	h.client.drop()
	h.associated = false

	st := h.m.Status()
	if st.State != StateConnected || st.Connected {
		t.Errorf("before Step: State = %v, Connected = %v, want connected/false", st.State, st.Connected)
	}

	h.m.Step()

	st = h.m.Status()
	if st.State != StateDisconnected || st.Connected {
		t.Errorf("after Step: State = %v, Connected = %v, want disconnected/false", st.State, st.Connected)
	}
	if st.LastError != mqtt.ErrorNetworkFailedRead {
		t.Errorf("LastError = %v, want %v", st.LastError, mqtt.ErrorNetworkFailedRead)
	}
}

func TestStep_ConnectedServicesLoop(t *testing.T) {
	h := newHarness(t)
	h.m.Start()

	h.m.Step()
	h.m.Step()

	if h.client.loops != 2 {
		t.Errorf("Loop calls = %d, want 2", h.client.loops)
	}
	if h.client.connectCalls != 1 {
		t.Errorf("connect calls = %d, want 1", h.client.connectCalls)
	}
}

func TestThrottle(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	th := NewThrottle(5 * time.Second)

	if !th.Ready(base) {
		t.Error("Ready() = false for a throttle that never failed")
	}

	th.Fail(base)
	tests := []struct {
		elapsed time.Duration
		want    bool
	}{
		{0, false},
		{time.Second, false},
		{5*time.Second - time.Nanosecond, false},
		{5 * time.Second, true},
		{time.Hour, true},
		{-time.Second, false},
	}
	for _, tt := range tests {
		if got := th.Ready(base.Add(tt.elapsed)); got != tt.want {
			t.Errorf("Ready(+%v) = %v, want %v", tt.elapsed, got, tt.want)
		}
	}

	th.Reset()
	if !th.LastFailure().IsZero() || !th.Ready(base) {
		t.Error("Reset() did not return throttle to never-failed")
	}
}

// =============================================================================
// Forced Disconnect Tests
// =============================================================================

func TestForceDisconnect_SuppressesReconnect(t *testing.T) {
	h := newHarness(t)
	h.m.Start()

	if !h.m.ForceDisconnect() {
		t.Error("ForceDisconnect() = false, want true for live session")
	}
	if h.m.State() != StateForcedDisconnected {
		t.Errorf("State() = %v, want forced_disconnected", h.m.State())
	}

	for i := 0; i < 50; i++ {
		h.clock.Advance(time.Minute)
		h.m.Step()
		h.m.Start()
	}

	if h.client.connectCalls != 1 {
		t.Errorf("connect calls = %d while forced, want 1", h.client.connectCalls)
	}
	if h.client.loops != 0 {
		t.Errorf("Loop calls = %d while forced, want 0", h.client.loops)
	}
}

func TestForceDisconnect_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.m.Start()

	h.m.ForceDisconnect()
	if h.m.ForceDisconnect() {
		t.Error("second ForceDisconnect() = true, want false")
	}
	if h.m.State() != StateForcedDisconnected {
		t.Errorf("State() = %v, want forced_disconnected", h.m.State())
	}
}

func TestForceReconnect_OneImmediateAttempt(t *testing.T) {
	h := newHarness(t, "a")
	h.client.connectResult = failFirst(1)
	h.m.Start()
	h.m.ForceDisconnect()

	before := h.client.connectCalls
	if !h.m.ForceReconnect() {
		t.Fatal("ForceReconnect() = false, want true")
	}
	if h.client.connectCalls-before != 1 {
		t.Errorf("connect calls in ForceReconnect = %d, want 1", h.client.connectCalls-before)
	}
	if h.m.State() != StateConnected {
		t.Errorf("State() = %v, want connected", h.m.State())
	}
	if len(h.client.subscribes) != 1 {
		t.Errorf("subscribe calls = %d, want 1", len(h.client.subscribes))
	}
}

func TestForceReconnect_ReportsFailure(t *testing.T) {
	h := newHarness(t)
	h.client.connectResult = failAlways
	h.m.Start()
	h.m.ForceDisconnect()

	if h.m.ForceReconnect() {
		t.Error("ForceReconnect() = true for failing broker")
	}
	if h.client.connectCalls != 2 {
		t.Errorf("connect calls = %d, want 2 (throttle bypassed)", h.client.connectCalls)
	}
	if h.m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", h.m.State())
	}

	// Normal throttling resumes after the failed attempt.
	h.clock.Advance(time.Second)
	h.m.Step()
	if h.client.connectCalls != 2 {
		t.Errorf("connect calls = %d, want 2", h.client.connectCalls)
	}
}

func TestForceReconnect_BeforeStart(t *testing.T) {
	h := newHarness(t)

	if h.m.ForceReconnect() {
		t.Error("ForceReconnect() before Start = true")
	}
	if h.client.connectCalls != 0 {
		t.Errorf("connect calls = %d, want 0", h.client.connectCalls)
	}
}

// =============================================================================
// Status Tests
// =============================================================================

func TestStatus(t *testing.T) {
	h := newHarness(t, "a")
	rec := &fakeRecorder{}
	h.m.SetEventRecorder(rec)
	h.client.connectResult = failFirst(1)

	h.m.Start()
	st := h.m.Status()

	if st.State != StateDisconnected || st.Connected {
		t.Errorf("state = %v connected = %v, want disconnected", st.State, st.Connected)
	}
	if st.LastFailure != h.clock.Now() {
		t.Errorf("LastFailure = %v, want %v", st.LastFailure, h.clock.Now())
	}
	if st.LastError != mqtt.ErrorNetworkFailedConnect {
		t.Errorf("LastError = %v, want %v", st.LastError, mqtt.ErrorNetworkFailedConnect)
	}
	if st.Server != "broker.local" || st.ClientID != "greenhouse-01" || st.Username != "u" {
		t.Errorf("identity = %s/%s/%s", st.Server, st.ClientID, st.Username)
	}

	h.clock.Advance(5 * time.Second)
	h.m.Step()
	st = h.m.Status()
	if st.Attempts != 2 || st.Failures != 1 || st.Connects != 1 {
		t.Errorf("counters = %d/%d/%d, want 2/1/1", st.Attempts, st.Failures, st.Connects)
	}
	if !st.LastFailure.IsZero() {
		t.Errorf("LastFailure = %v after success, want zero", st.LastFailure)
	}

	want := []string{"connect_failed", "connected"}
	if !reflect.DeepEqual(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
}

func TestSetMessageHandler(t *testing.T) {
	h := newHarness(t)
	var got string
	h.m.SetMessageHandler(func(topic string, _ []byte) { got = topic })

	if h.client.handler == nil {
		t.Fatal("handler not registered on client")
	}
	h.client.handler("sensor/cmd", nil)
	if got != "sensor/cmd" {
		t.Errorf("handler topic = %q, want sensor/cmd", got)
	}
}

func TestResolveIdentity(t *testing.T) {
	def := Identity{Host: "default", Username: "du"}

	tests := []struct {
		name     string
		override Identity
		want     Identity
	}{
		{"no override", Identity{}, def},
		{"override without host", Identity{Username: "ou"}, def},
		{"valid override", Identity{Host: "override"}, Identity{Host: "override"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveIdentity(def, tt.override); got != tt.want {
				t.Errorf("ResolveIdentity() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	if StateForcedDisconnected.String() != "forced_disconnected" {
		t.Errorf("String() = %q", StateForcedDisconnected.String())
	}
	if State(42).String() != "unknown" {
		t.Errorf("String() = %q, want unknown", State(42).String())
	}
}

func TestClose_DoesNotForce(t *testing.T) {
	h := newHarness(t)

	if h.m.Close() {
		t.Error("Close() before Start = true, want false")
	}

	h.m.Start()
	if !h.m.Close() {
		t.Error("Close() = false, want true for live session")
	}
	if h.m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", h.m.State())
	}
	if h.client.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", h.client.disconnects)
	}
}
