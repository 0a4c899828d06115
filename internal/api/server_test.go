package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-broadlink/internal/auth"
	bridge "github.com/nerrad567/gray-logic-broadlink/internal/bridges/broadlink"
	"github.com/nerrad567/gray-logic-broadlink/internal/device"
	"github.com/nerrad567/gray-logic-broadlink/internal/device/devicetest"
	"github.com/nerrad567/gray-logic-broadlink/internal/dispatch"
	"github.com/nerrad567/gray-logic-broadlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-broadlink/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-broadlink/internal/learning"
)

const (
	testSecret  = "test-secret-key-at-least-32-characters-long"
	testAddress = "192.168.1.50"
	testMAC     = "34:ea:34:aa:bb:cc"
)

// fakeLearner starts IR sessions on a real controller; RF is disabled.
type fakeLearner struct {
	ir *learning.Controller

	mu      sync.Mutex
	stopped []learning.Kind
}

func (f *fakeLearner) Learn(kind learning.Kind, selector string, frequency float64) (*learning.Session, error) {
	if kind != learning.KindIR {
		return nil, bridge.ErrLearningDisabled
	}
	return f.ir.Start(context.Background(), learning.Request{Selector: selector, Frequency: frequency})
}

func (f *fakeLearner) StopLearning(kind learning.Kind) error {
	if kind != "" && kind != learning.KindIR && kind != learning.KindRF {
		return bridge.ErrUnknownKind
	}
	f.mu.Lock()
	f.stopped = append(f.stopped, kind)
	f.mu.Unlock()
	f.ir.Stop()
	return nil
}

type testEnv struct {
	srv       *Server
	router    http.Handler
	registry  *device.Registry
	transport *devicetest.Transport
	learner   *fakeLearner
}

// testServer creates a Server over a registry holding one fake device.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	reg := device.NewRegistry(nil)
	tr := devicetest.NewTransport()
	reg.Register(device.Identity{Address: testAddress, MAC: testMAC}, tr)

	ir := learning.NewIR(reg, learning.Config{
		PollInterval: 10 * time.Millisecond,
		IRTimeout:    100 * time.Millisecond,
		LockPause:    -1,
	})
	t.Cleanup(ir.Close)
	learner := &fakeLearner{ir: ir}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testSecret,
				AccessTokenTTL: 15,
			},
		},
		Logger:     log,
		Registry:   reg,
		Dispatcher: dispatch.New(reg, time.Second),
		Learner:    learner,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(ctx)

	return &testEnv{
		srv:       srv,
		router:    srv.buildRouter(),
		registry:  reg,
		transport: tr,
		learner:   learner,
	}
}

func tokenFor(t *testing.T, role auth.Role) string {
	t.Helper()
	token, err := auth.GenerateAccessToken("tester", role, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return token
}

// do sends a request through the router with an optional role's token.
func (e *testEnv) do(t *testing.T, method, path, body string, role auth.Role) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, role))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	reg := device.NewRegistry(nil)
	sec := config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}}

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Registry: reg, Dispatcher: dispatch.New(reg, 0), Security: sec}},
		{"no registry", Deps{Logger: log, Dispatcher: dispatch.New(reg, 0), Security: sec}},
		{"no dispatcher", Deps{Logger: log, Registry: reg, Security: sec}},
		{"no secret", Deps{Logger: log, Registry: reg, Dispatcher: dispatch.New(reg, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if resp["devices_managed"] != float64(1) {
		t.Errorf("devices_managed = %v, want 1", resp["devices_managed"])
	}
}

func TestHealthCheck_NotStarted(t *testing.T) {
	e := testServer(t)
	if err := e.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail before Start")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodGet, "/api/v1/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	e := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	e := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestAuth_RejectsMissingAndInvalidTokens(t *testing.T) {
	e := testServer(t)

	if w := e.do(t, http.MethodGet, "/api/v1/devices", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	other, err := auth.GenerateAccessToken("tester", auth.RoleAdmin, "another-secret-of-sufficient-length!", time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuth_ViewerCannotSend(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodPost, "/api/v1/devices/"+testAddress+"/send", `{"data":"2600aa"}`, auth.RoleViewer)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if n := e.transport.Count("send"); n != 0 {
		t.Errorf("sends = %d, want 0", n)
	}

	w = e.do(t, http.MethodPost, "/api/v1/devices/"+testAddress+"/learn/ir", "", auth.RoleViewer)
	if w.Code != http.StatusForbidden {
		t.Errorf("learn status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// ─── Device Tests ──────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	e := testServer(t)
	e.registry.Register(device.Identity{Address: "192.168.1.51"}, devicetest.NewTransport())

	w := e.do(t, http.MethodGet, "/api/v1/devices", "", auth.RoleViewer)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decode[struct {
		Devices []deviceView `json:"devices"`
		Count   int          `json:"count"`
	}](t, w)
	if resp.Count != 2 || len(resp.Devices) != 2 {
		t.Fatalf("count = %d, devices = %d, want 2", resp.Count, len(resp.Devices))
	}
	if resp.Devices[0].Address != testAddress {
		t.Errorf("first device = %q, want %q", resp.Devices[0].Address, testAddress)
	}
	if got := strings.Join(resp.Devices[0].Capabilities, ","); got != "send,learn,rf" {
		t.Errorf("capabilities = %q", got)
	}
}

func TestGetDevice(t *testing.T) {
	e := testServer(t)

	for _, sel := range []string{testAddress, "34-EA-34-AA-BB-CC", "_"} {
		w := e.do(t, http.MethodGet, "/api/v1/devices/"+sel, "", auth.RoleViewer)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: status = %d, want %d", sel, w.Code, http.StatusOK)
			continue
		}
		v := decode[deviceView](t, w)
		if v.Address != testAddress {
			t.Errorf("GET %s: address = %q", sel, v.Address)
		}
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodGet, "/api/v1/devices/10.0.0.99", "", auth.RoleViewer)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSend_Single(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodPost, "/api/v1/devices/"+testAddress+"/send", `{"data":"2600aa"}`, auth.RoleOperator)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decode[sendResponse](t, w)
	if resp.Status != bridge.AckAccepted {
		t.Errorf("status = %q, want accepted", resp.Status)
	}
	if resp.Device != testAddress {
		t.Errorf("device = %q, want %q", resp.Device, testAddress)
	}
	if resp.Outcome.Attempted != 1 || resp.Outcome.Failed != 0 {
		t.Errorf("outcome = %+v", resp.Outcome)
	}
	if n := e.transport.Count("send"); n != 1 {
		t.Errorf("sends = %d, want 1", n)
	}
}

func TestSend_Sequence(t *testing.T) {
	e := testServer(t)

	body := `{"sequence":[{"data":"aa","send_count":2,"interval":0.01},{"pause":0.01},{"data":"bb"}]}`
	w := e.do(t, http.MethodPost, "/api/v1/devices/_/send", body, auth.RoleOperator)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decode[sendResponse](t, w)
	if resp.Outcome.Attempted != 3 {
		t.Errorf("attempted = %d, want 3", resp.Outcome.Attempted)
	}
}

func TestSend_PartialFailure(t *testing.T) {
	e := testServer(t)
	e.transport.SendErr = func([]byte) error { return errors.New("udp timeout") }

	w := e.do(t, http.MethodPost, "/api/v1/devices/"+testAddress+"/send", `{"data":"2600aa"}`, auth.RoleOperator)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}

	resp := decode[sendResponse](t, w)
	if resp.Status != bridge.AckFailed || resp.Outcome.Failed < 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSend_DeviceNotFound(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodPost, "/api/v1/devices/10.0.0.99/send", `{"data":"2600aa"}`, auth.RoleOperator)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	resp := decode[sendResponse](t, w)
	if resp.Outcome.Attempted != 0 || resp.Outcome.Failed != -1 {
		t.Errorf("outcome = %+v, want {0 -1}", resp.Outcome)
	}
}

func TestSend_InvalidRequests(t *testing.T) {
	e := testServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{"data":`},
		{"empty command", `{}`},
		{"data and sequence", `{"data":"aa","sequence":[{"data":"bb"}]}`},
		{"negative timeout", `{"data":"aa","timeout":-1}`},
		{"negative send count", `{"sequence":[{"data":"aa","send_count":-2}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/v1/devices/"+testAddress+"/send", tt.body, auth.RoleOperator)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
	if n := e.transport.Count("send"); n != 0 {
		t.Errorf("sends = %d, want 0", n)
	}
}

func TestStats(t *testing.T) {
	e := testServer(t)
	e.do(t, http.MethodPost, "/api/v1/devices/"+testAddress+"/send", `{"data":"aa"}`, auth.RoleOperator)

	w := e.do(t, http.MethodGet, "/api/v1/stats", "", auth.RoleViewer)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[map[string]any](t, w)
	if resp["commands_dispatched"] != float64(1) {
		t.Errorf("commands_dispatched = %v, want 1", resp["commands_dispatched"])
	}
}

// ─── Learning Tests ────────────────────────────────────────────────

func TestStartLearning_IR(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodPost, "/api/v1/devices/"+testAddress+"/learn/ir", "", auth.RoleOperator)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	resp := decode[map[string]any](t, w)
	if id, _ := resp["session_id"].(string); id == "" {
		t.Error("session_id should be set")
	}
	if resp["device"] != testAddress {
		t.Errorf("device = %v, want %s", resp["device"], testAddress)
	}
}

func TestStartLearning_Errors(t *testing.T) {
	e := testServer(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown kind", "/api/v1/devices/" + testAddress + "/learn/uv", "", http.StatusBadRequest},
		{"rf disabled", "/api/v1/devices/" + testAddress + "/learn/rf", "", http.StatusUnprocessableEntity},
		{"device not found", "/api/v1/devices/10.0.0.99/learn/ir", "", http.StatusNotFound},
		{"negative frequency", "/api/v1/devices/" + testAddress + "/learn/ir", `{"frequency":-1}`, http.StatusBadRequest},
		{"invalid JSON", "/api/v1/devices/" + testAddress + "/learn/ir", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, tt.path, tt.body, auth.RoleOperator)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestStartLearning_NoLearner(t *testing.T) {
	e := testServer(t)
	e.srv.learner = nil

	w := e.do(t, http.MethodPost, "/api/v1/devices/"+testAddress+"/learn/ir", "", auth.RoleOperator)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestStopLearning(t *testing.T) {
	e := testServer(t)

	if w := e.do(t, http.MethodDelete, "/api/v1/learning/ir", "", auth.RoleOperator); w.Code != http.StatusNoContent {
		t.Errorf("DELETE /learning/ir status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w := e.do(t, http.MethodDelete, "/api/v1/learning", "", auth.RoleOperator); w.Code != http.StatusNoContent {
		t.Errorf("DELETE /learning status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w := e.do(t, http.MethodDelete, "/api/v1/learning/uv", "", auth.RoleOperator); w.Code != http.StatusBadRequest {
		t.Errorf("DELETE /learning/uv status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	e.learner.mu.Lock()
	defer e.learner.mu.Unlock()
	if len(e.learner.stopped) != 2 || e.learner.stopped[0] != learning.KindIR || e.learner.stopped[1] != "" {
		t.Errorf("stopped = %v, want [ir \"\"]", e.learner.stopped)
	}
}

// ─── WebSocket Ticket Tests ────────────────────────────────────────

func TestWSTicket_RequiresAuth(t *testing.T) {
	e := testServer(t)

	if w := e.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", "", auth.RoleViewer)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decode[map[string]any](t, w)
	ticket, ok := resp["ticket"].(string)
	if !ok || ticket == "" {
		t.Fatal("expected ticket to be a non-empty string")
	}

	entry, ok := e.srv.tickets.consume(ticket)
	if !ok {
		t.Fatal("ticket should be valid on first use")
	}
	if entry.subject != "tester" || entry.role != auth.RoleViewer {
		t.Errorf("entry = %+v", entry)
	}

	if _, ok := e.srv.tickets.consume(ticket); ok {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	ts := newTicketStore()
	ticket := generateTicket()
	ts.tickets[ticket] = ticketEntry{expiresAt: time.Now().Add(-1 * time.Second)}

	if _, ok := ts.consume(ticket); ok {
		t.Error("expired ticket should not be valid")
	}
}

func TestWSTicket_CleanExpired(t *testing.T) {
	ts := newTicketStore()
	ts.tickets["old"] = ticketEntry{expiresAt: time.Now().Add(-time.Second)}
	fresh := ts.issue("tester", auth.RoleAdmin)

	ts.cleanExpired()

	if _, ok := ts.tickets["old"]; ok {
		t.Error("expired ticket should be removed")
	}
	if _, ok := ts.tickets[fresh]; !ok {
		t.Error("fresh ticket should be kept")
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{bridge.EventDeviceState: {}},
	}
	hub.Register(client)

	hub.Broadcast(bridge.EventDeviceState, map[string]any{"address": testAddress, "state": "active"})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != bridge.EventDeviceState {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, bridge.EventDeviceState)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{bridge.EventLearning: {}},
	}
	hub.Register(client)

	hub.Broadcast(bridge.EventDeviceState, map[string]any{"address": testAddress})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_DeviceFilter(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		role:          auth.RoleViewer,
	}
	hub.Register(client)

	client.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["device.state_changed","learning.progress"],"devices":["34-EA-34-AA-BB-CC"]}}`))
	select {
	case <-client.send:
	case <-time.After(time.Second):
		t.Fatal("expected subscribe response")
	}

	tests := []struct {
		name    string
		channel string
		payload any
		want    bool
	}{
		{"matching mac", bridge.EventDeviceState, bridge.StateMessage{Address: "192.168.1.99", MAC: testMAC}, true},
		{"other device", bridge.EventDeviceState, bridge.StateMessage{Address: "192.168.1.99", MAC: "34:ea:34:00:00:01"}, false},
		{"learn by address", bridge.EventLearning, bridge.LearnMessage{Device: testAddress}, false},
		{"untyped payload", bridge.EventLearning, map[string]any{"device": "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub.Broadcast(tt.channel, tt.payload)
			select {
			case <-client.send:
				if !tt.want {
					t.Error("event delivered through filter")
				}
			case <-time.After(100 * time.Millisecond):
				if tt.want {
					t.Error("event not delivered")
				}
			}
		})
	}
}

func TestHub_UnregisterStopsDelivery(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{bridge.EventDispatch: {}},
	}
	hub.Register(client)
	hub.Unregister(client)

	// Sending to a closed client must not panic.
	client.trySend([]byte("x"))
	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed and empty")
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := newTestHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}

	// Second unregister must not double-close the send channel.
	hub.Unregister(client)
}

func TestHub_ImplementsEventSink(t *testing.T) {
	var _ bridge.EventSink = (*Hub)(nil)
}

// ─── WebSocket End-to-End ──────────────────────────────────────────

func TestWebSocket_RejectsMissingTicket(t *testing.T) {
	e := testServer(t)

	if w := e.do(t, http.MethodGet, "/api/v1/ws", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no ticket: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w := e.do(t, http.MethodGet, "/api/v1/ws?ticket=bogus", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("bogus ticket: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	e := testServer(t)
	ts := httptest.NewServer(e.router)
	defer ts.Close()

	ticket := e.srv.tickets.issue("tester", auth.RoleViewer)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + ticket

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.Body != nil {
		resp.Body.Close()
	}

	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{bridge.EventDispatch}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("subscribe response = %+v", ack)
	}

	e.srv.hub.Broadcast(bridge.EventDispatch, map[string]any{"selector": testAddress})

	var evt WSMessage
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if evt.Type != WSTypeEvent || evt.EventType != bridge.EventDispatch {
		t.Errorf("event = %+v", evt)
	}
}

func TestWebSocket_UnknownChannel(t *testing.T) {
	hub := newTestHub(t)
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		role:          auth.RoleViewer,
	}

	client.handleMessage([]byte(`{"type":"subscribe","id":"7","payload":{"channels":["scene.activated"]}}`))

	select {
	case raw := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != WSTypeError || msg.ID != "7" {
			t.Errorf("msg = %+v, want error for id 7", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an error response")
	}
	if client.isSubscribed("scene.activated") {
		t.Error("unknown channel should not be subscribed")
	}
}
