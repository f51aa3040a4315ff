package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/voicedesk/voicedesk/pkg/bridge/config"
	"github.com/voicedesk/voicedesk/pkg/store"
)

func testConfig() config.Config {
	return config.Config{
		Addr:              ":8080",
		OpenAIAPIKey:      "sk-test",
		RealtimeURL:       "wss://example.com/v1/realtime",
		HandshakeTimeout:  15 * time.Second,
		CallIdleTimeout:   time.Minute,
		CallWriteTimeout:  5 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}
}

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(testConfig(), logger, mem), mem
}

func TestServer_HealthAndReady(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	h := s.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID on every response")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestServer_VoiceWebhookRoute(t *testing.T) {
	t.Parallel()

	s, mem := newTestServer(t)
	mem.PutAssistant(store.Assistant{
		Name:                "Ava",
		BusinessName:        "Lakeside Dental",
		StartTime:           "09:00",
		EndTime:             "17:00",
		SlotDurationMinutes: 30,
		PhoneNumber:         "+15550100",
	})

	form := url.Values{"To": {"+15550100"}, "From": {"+15550123"}}
	req := httptest.NewRequest(http.MethodPost, "/v1/voice/incoming", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Host = "bridge.example.com"

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "wss://bridge.example.com/v1/voice/stream/") {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestServer_CallsRouteEmpty(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/calls", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 0 {
		t.Fatalf("count=%d, want 0", resp.Count)
	}
	if s.ActiveCalls() != 0 {
		t.Fatalf("ActiveCalls=%d, want 0", s.ActiveCalls())
	}
}

func TestServer_ProvisioningUnconfigured(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/numbers", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503 without twilio credentials", rr.Code)
	}
}
