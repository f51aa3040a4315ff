package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// PublicHost is the externally reachable host used when building the
	// websocket URL handed back to the telephony provider in TwiML. It must
	// not include a scheme.
	PublicHost string

	// DatabaseURL selects the postgres-backed store. Empty means the
	// in-memory store, which only makes sense for local development.
	DatabaseURL    string
	MigrateOnStart bool

	// Speech backend.
	OpenAIAPIKey     string
	RealtimeURL      string
	HandshakeTimeout time.Duration

	// Relay hardening.
	CallIdleTimeout  time.Duration
	CallWriteTimeout time.Duration

	// Telephony provisioning (optional; only needed for number purchase).
	TwilioAccountSID string
	TwilioAuthToken  string

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOICEDESK_ADDR", ":8080"),
		PublicHost:          envOr("VOICEDESK_PUBLIC_HOST", ""),
		DatabaseURL:         envOr("DATABASE_URL", ""),
		MigrateOnStart:      envBoolOr("VOICEDESK_MIGRATE_ON_START", true),
		OpenAIAPIKey:        envOr("OPENAI_API_KEY", ""),
		RealtimeURL:         envOr("VOICEDESK_REALTIME_URL", "wss://api.openai.com/v1/realtime?model=gpt-4o-mini-realtime-preview-2024-12-17"),
		HandshakeTimeout:    envDurationOr("VOICEDESK_HANDSHAKE_TIMEOUT", 15*time.Second),
		CallIdleTimeout:     envDurationOr("VOICEDESK_CALL_IDLE_TIMEOUT", 60*time.Second),
		CallWriteTimeout:    envDurationOr("VOICEDESK_CALL_WRITE_TIMEOUT", 5*time.Second),
		TwilioAccountSID:    envOr("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     envOr("TWILIO_AUTH_TOKEN", ""),
		ReadHeaderTimeout:   envDurationOr("VOICEDESK_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("VOICEDESK_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("VOICEDESK_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.RealtimeURL) == "" {
		return Config{}, fmt.Errorf("VOICEDESK_REALTIME_URL must not be empty")
	}
	if strings.Contains(cfg.PublicHost, "://") {
		return Config{}, fmt.Errorf("VOICEDESK_PUBLIC_HOST must be a bare host, not a URL")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEDESK_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.CallIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEDESK_CALL_IDLE_TIMEOUT must be > 0")
	}
	if cfg.CallWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEDESK_CALL_WRITE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEDESK_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEDESK_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICEDESK_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if (cfg.TwilioAccountSID == "") != (cfg.TwilioAuthToken == "") {
		return Config{}, fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN must be set together")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
