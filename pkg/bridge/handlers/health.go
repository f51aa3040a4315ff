package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/voicedesk/voicedesk/pkg/bridge/calls"
	"github.com/voicedesk/voicedesk/pkg/bridge/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config   config.Config
	Registry *calls.Registry
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK          bool     `json:"ok"`
		Store       string   `json:"store"`
		ActiveCalls int      `json:"active_calls"`
		Issues      []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "openai api key not configured")
	}
	if h.Config.RealtimeURL == "" {
		issues = append(issues, "realtime url not configured")
	}
	if h.Config.CallIdleTimeout <= 0 || h.Config.CallWriteTimeout <= 0 {
		issues = append(issues, "call timeouts must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "server timeouts must be > 0")
	}

	storeKind := "memory"
	if h.Config.DatabaseURL != "" {
		storeKind = "postgres"
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:          ok,
		Store:       storeKind,
		ActiveCalls: h.Registry.Count(),
		Issues:      issues,
	})
}
