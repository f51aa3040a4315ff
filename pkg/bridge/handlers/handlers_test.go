package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicedesk/voicedesk/pkg/bridge/call"
	"github.com/voicedesk/voicedesk/pkg/bridge/calls"
	"github.com/voicedesk/voicedesk/pkg/bridge/config"
	"github.com/voicedesk/voicedesk/pkg/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestReadyHandler_OK(t *testing.T) {
	t.Parallel()

	h := ReadyHandler{
		Config: config.Config{
			OpenAIAPIKey:      "sk-test",
			RealtimeURL:       "wss://example.com/v1/realtime",
			CallIdleTimeout:   time.Minute,
			CallWriteTimeout:  5 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
		},
		Registry: calls.NewRegistry(),
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ok, _ := resp["ok"].(bool); !ok {
		t.Fatalf("expected ok=true, body=%q", rr.Body.String())
	}
	if resp["store"] != "memory" {
		t.Fatalf("store=%v, want memory", resp["store"])
	}
}

func TestReadyHandler_MissingAPIKey_NotReady(t *testing.T) {
	t.Parallel()

	h := ReadyHandler{
		Config: config.Config{
			RealtimeURL:       "wss://example.com/v1/realtime",
			CallIdleTimeout:   time.Minute,
			CallWriteTimeout:  5 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
		},
		Registry: calls.NewRegistry(),
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rr.Code)
	}
}

func seedAssistant(t *testing.T, mem *store.Memory) store.Assistant {
	t.Helper()
	return mem.PutAssistant(store.Assistant{
		Name:                "Ava",
		BusinessName:        "Lakeside Dental",
		StartTime:           "09:00",
		EndTime:             "17:00",
		SlotDurationMinutes: 30,
		PhoneNumber:         "+15550100",
	})
}

func postForm(t *testing.T, h http.Handler, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestVoiceWebhook_ReturnsConnectStream(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	seedAssistant(t, mem)
	h := VoiceWebhook{Assistants: mem, Conversations: mem, PublicHost: "bridge.example.com", Logger: discardLogger()}

	form := url.Values{"To": {"+15550100"}, "From": {"+15550123"}}
	rr := postForm(t, h, "/v1/voice/incoming", form)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/xml" {
		t.Fatalf("content-type=%q, want text/xml", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "<Connect>") {
		t.Fatalf("missing Connect verb:\n%s", body)
	}
	if !strings.Contains(body, `wss://bridge.example.com/v1/voice/stream/`) {
		t.Fatalf("missing stream url:\n%s", body)
	}

	// A second call from the same number must reuse the conversation.
	again := postForm(t, h, "/v1/voice/incoming", form)
	if again.Body.String() != body {
		t.Fatalf("expected a stable stream url for a repeat caller\nfirst: %s\nsecond: %s", body, again.Body.String())
	}
}

func TestVoiceWebhook_UnknownNumber(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	h := VoiceWebhook{Assistants: mem, Conversations: mem, Logger: discardLogger()}

	rr := postForm(t, h, "/v1/voice/incoming", url.Values{"To": {"+15559999"}, "From": {"+15550123"}})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
}

func TestVoiceWebhook_MissingFields(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	h := VoiceWebhook{Assistants: mem, Conversations: mem, Logger: discardLogger()}

	rr := postForm(t, h, "/v1/voice/incoming", url.Values{"To": {"+15550100"}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}

func TestCallsHandler(t *testing.T) {
	t.Parallel()

	registry := calls.NewRegistry()
	registry.Register("call-1", calls.Handle{State: func() string { return "active" }})

	rr := httptest.NewRecorder()
	CallsHandler{Registry: registry}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/calls", nil))

	var resp struct {
		Count int `json:"count"`
		Calls []struct {
			CallID string `json:"call_id"`
			State  string `json:"state"`
		} `json:"calls"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 || len(resp.Calls) != 1 || resp.Calls[0].CallID != "call-1" || resp.Calls[0].State != "active" {
		t.Fatalf("resp=%+v", resp)
	}
}

type fakeProvisioner struct {
	country string
	err     error
}

func (p *fakeProvisioner) BuyNumber(country string) (string, error) {
	p.country = country
	if p.err != nil {
		return "", p.err
	}
	return "+15550200", nil
}

func TestProvisionHandler(t *testing.T) {
	t.Parallel()

	p := &fakeProvisioner{}
	h := ProvisionHandler{Provisioner: p, Logger: discardLogger()}

	req := httptest.NewRequest(http.MethodPost, "/v1/numbers", strings.NewReader(`{"country":"GB"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if p.country != "GB" {
		t.Fatalf("country=%q, want GB", p.country)
	}
	if !strings.Contains(rr.Body.String(), "+15550200") {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestProvisionHandler_Unconfigured(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	ProvisionHandler{Logger: discardLogger()}.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/numbers", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rr.Code)
	}
}

// fakeBackend satisfies the session's backend leg: reads block until Close,
// writes are recorded.
type fakeBackend struct {
	mu     sync.Mutex
	writes [][]byte
	closed chan struct{}
	once   sync.Once
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{closed: make(chan struct{})}
}

func (c *fakeBackend) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
}

func (c *fakeBackend) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeBackend) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeBackend) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeBackend) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func TestStreamHandler_BridgesCall(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	assistant := seedAssistant(t, mem)
	convo, err := mem.FindOrCreateConversation(context.Background(), assistant.ID, "+15550123")
	if err != nil {
		t.Fatalf("FindOrCreateConversation: %v", err)
	}

	backend := newFakeBackend()
	registry := calls.NewRegistry()
	h := &StreamHandler{
		Store:    mem,
		Registry: registry,
		Logger:   discardLogger(),
		CallConfig: call.Config{
			IdleTimeout:  2 * time.Second,
			WriteTimeout: time.Second,
		},
		DialRealtime: func(context.Context) (call.Conn, error) { return backend, nil },
	}

	mux := http.NewServeMux()
	mux.Handle("GET /v1/voice/stream/{conversation}", h)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/voice/stream/" + convo.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"start","start":{"streamSid":"MZ1"}}`)); err != nil {
		t.Fatalf("write start: %v", err)
	}

	// The session configures the backend as soon as it starts.
	deadline := time.Now().Add(2 * time.Second)
	for backend.writeCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if backend.writeCount() == 0 {
		t.Fatalf("backend never received the session configuration")
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for registry.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if registry.Count() != 0 {
		t.Fatalf("call never unregistered after hangup")
	}
}

func TestStreamHandler_UnknownConversation(t *testing.T) {
	t.Parallel()

	h := &StreamHandler{
		Store:        store.NewMemory(),
		Registry:     calls.NewRegistry(),
		Logger:       discardLogger(),
		CallConfig:   call.Config{IdleTimeout: time.Second, WriteTimeout: time.Second},
		DialRealtime: func(context.Context) (call.Conn, error) { return nil, errors.New("should not dial") },
	}

	mux := http.NewServeMux()
	mux.Handle("GET /v1/voice/stream/{conversation}", h)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/voice/stream/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
}
