package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"appliancebridge/internal/appliance"
	"appliancebridge/internal/infrastructure/config"
	"appliancebridge/internal/infrastructure/logging"
	"appliancebridge/internal/infrastructure/mqtt"
)

const testPassword = "test-secret"

// fakeChannel is an in-memory transport standing in for the MQTT client.
type fakeChannel struct {
	mu        sync.Mutex
	published []publishedMsg
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

type publishedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		handlers:  make(map[string]mqtt.MessageHandler),
		connected: true,
	}
}

func (f *fakeChannel) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (f *fakeChannel) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeChannel) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) handler(topic string) mqtt.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[topic]
}

func (f *fakeChannel) lastPublished(t *testing.T) publishedMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("expected a published message")
	}
	return f.published[len(f.published)-1]
}

func testConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTTConfig{
			Broker: config.MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "test"},
			QoS:    1,
		},
		Appliance: config.ApplianceConfig{
			ControlTopic: "appliances/control",
			StateTopic:   "appliances/state",
			Password:     testPassword,
		},
		API: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WebSocket: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
	}
}

// testServer creates a Server wired to a relay that dials a fake channel.
func testServer(t *testing.T) (*Server, *fakeChannel) {
	t.Helper()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	cfg := testConfig()

	fake := newFakeChannel()
	relay := appliance.New(cfg, log)
	relay.SetDial(func() (appliance.Channel, error) { return fake, nil })

	srv, err := New(Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Relay:   relay,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, fake
}

func decodeCommand(t *testing.T, payload []byte) (string, map[string]string) {
	t.Helper()
	var msg struct {
		Password string            `json:"password"`
		Pins     map[string]string `json:"pins"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal command: %v", err)
	}
	return msg.Password, msg.Pins
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if resp["connected"] != false {
		t.Errorf("connected = %v, want false before first command", resp["connected"])
	}
}

// ─── Control Endpoint Tests ────────────────────────────────────────

func TestControl_Success(t *testing.T) {
	srv, fake := testServer(t)
	router := srv.buildRouter()

	body := `{"pins": {"d1": "on", "d2": "off"}, "password": "test-secret"}`
	req := httptest.NewRequest(http.MethodPost, "/appliances/control", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp controlResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
	if len(resp.PinsUpdated) != 2 || resp.PinsUpdated[0] != "d1" || resp.PinsUpdated[1] != "d2" {
		t.Errorf("pins_updated = %v, want [d1 d2]", resp.PinsUpdated)
	}

	msg := fake.lastPublished(t)
	if msg.topic != "appliances/control" {
		t.Errorf("published topic = %q, want appliances/control", msg.topic)
	}
	if msg.retained {
		t.Error("command must not be retained")
	}
	password, pins := decodeCommand(t, msg.payload)
	if password != testPassword {
		t.Errorf("payload password = %q, want %q", password, testPassword)
	}
	if pins["d1"] != "on" || pins["d2"] != "off" {
		t.Errorf("payload pins = %v", pins)
	}
}

func TestControl_WrongPassword(t *testing.T) {
	srv, fake := testServer(t)
	router := srv.buildRouter()

	body := `{"pins": {"d1": "on"}, "password": "wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/appliances/control", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	fake.mu.Lock()
	published := len(fake.published)
	fake.mu.Unlock()
	if published != 0 {
		t.Error("no command must be published on auth failure")
	}
}

func TestControl_InvalidPin(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"pins": {"d9": "on"}, "password": "test-secret"}`
	req := httptest.NewRequest(http.MethodPost, "/appliances/control", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(resp.Message, "d9") {
		t.Errorf("error message %q should name the offending pin", resp.Message)
	}
}

func TestControl_InvalidJSON(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/appliances/control", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestControl_EmptyPins(t *testing.T) {
	srv, fake := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/appliances/control", strings.NewReader(`{"password": "test-secret"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp controlResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.PinsUpdated) != 0 {
		t.Errorf("pins_updated = %v, want empty", resp.PinsUpdated)
	}

	_, pins := decodeCommand(t, fake.lastPublished(t).payload)
	if len(pins) != 0 {
		t.Errorf("payload pins = %v, want empty command", pins)
	}
}

func TestControl_EmptyPinsWrongPassword(t *testing.T) {
	srv, fake := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/appliances/control", strings.NewReader(`{"password": "wrong"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	fake.mu.Lock()
	published := len(fake.published)
	fake.mu.Unlock()
	if published != 0 {
		t.Error("no command must be published on auth failure")
	}
}

func TestControl_BrokerUnavailable(t *testing.T) {
	srv, _ := testServer(t)
	srv.relay.SetDial(func() (appliance.Channel, error) {
		return nil, errors.New("connection refused")
	})
	router := srv.buildRouter()

	body := `{"pins": {"d1": "on"}, "password": "test-secret"}`
	req := httptest.NewRequest(http.MethodPost, "/appliances/control", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ─── State Endpoint Tests ──────────────────────────────────────────

func TestState_BeforeAnyReport(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/appliances/state", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp stateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Pins) != 0 {
		t.Errorf("pins = %v, want empty before first report", resp.Pins)
	}
	if resp.Connected {
		t.Error("connected = true, want false before first connection")
	}
}

// ─── Toggle Endpoint Tests ─────────────────────────────────────────

func TestToggle_AbsentPinTurnsOn(t *testing.T) {
	srv, fake := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/appliances/toggle/d3?password=test-secret", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	_, pins := decodeCommand(t, fake.lastPublished(t).payload)
	if pins["d3"] != "on" {
		t.Errorf("toggled pin state = %q, want on", pins["d3"])
	}
}

func TestToggle_UppercasePin(t *testing.T) {
	srv, fake := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/appliances/toggle/D3?password=test-secret", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	_, pins := decodeCommand(t, fake.lastPublished(t).payload)
	if pins["d3"] != "on" {
		t.Errorf("payload pins = %v, want d3 on", pins)
	}
}

func TestToggle_InvalidPin(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/appliances/toggle/d42?password=test-secret", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestToggle_WrongPassword(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/appliances/toggle/d3?password=wrong", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// ─── Set All Endpoint Tests ────────────────────────────────────────

func TestSetAll_Off(t *testing.T) {
	srv, fake := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/appliances/all/off?password=test-secret", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp controlResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.PinsUpdated) != appliance.PinCount {
		t.Errorf("pins_updated has %d entries, want %d", len(resp.PinsUpdated), appliance.PinCount)
	}

	_, pins := decodeCommand(t, fake.lastPublished(t).payload)
	if len(pins) != appliance.PinCount {
		t.Errorf("payload has %d pins, want %d", len(pins), appliance.PinCount)
	}
	for name, state := range pins {
		if state != "off" {
			t.Errorf("pin %s = %q, want off", name, state)
		}
	}
}

func TestSetAll_InvalidState(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/appliances/all/blink?password=test-secret", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(resp.Message, "blink") {
		t.Errorf("error message %q should name the offending state", resp.Message)
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Error Response Shape ──────────────────────────────────────────

func TestErrorResponse_Shape(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/appliances/toggle/d0?password=wrong", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != http.StatusUnauthorized {
		t.Errorf("status field = %d, want %d", resp.Status, http.StatusUnauthorized)
	}
	if resp.Code != ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeUnauthorized)
	}
	if resp.Message == "" {
		t.Error("message must not be empty")
	}
}
