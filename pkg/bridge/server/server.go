package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/voicedesk/voicedesk/pkg/bridge/call"
	"github.com/voicedesk/voicedesk/pkg/bridge/calls"
	"github.com/voicedesk/voicedesk/pkg/bridge/config"
	"github.com/voicedesk/voicedesk/pkg/bridge/handlers"
	"github.com/voicedesk/voicedesk/pkg/bridge/mw"
	"github.com/voicedesk/voicedesk/pkg/realtime"
	"github.com/voicedesk/voicedesk/pkg/store"
	"github.com/voicedesk/voicedesk/pkg/telephony"
)

type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	store    store.Store
	registry *calls.Registry
	mux      *http.ServeMux

	provisioner handlers.NumberProvisioner
}

func New(cfg config.Config, logger *slog.Logger, st store.Store) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: calls.NewRegistry(),
		mux:      http.NewServeMux(),
	}
	if cfg.TwilioAccountSID != "" && cfg.PublicHost != "" {
		s.provisioner = telephony.NewProvisioner(cfg.TwilioAccountSID, cfg.TwilioAuthToken, "https://"+cfg.PublicHost)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Registry: s.registry})

	s.mux.Handle("GET /v1/calls", handlers.CallsHandler{Registry: s.registry})
	s.mux.Handle("POST /v1/numbers", handlers.ProvisionHandler{Provisioner: s.provisioner, Logger: s.logger})

	s.mux.Handle("POST /v1/voice/incoming", handlers.VoiceWebhook{
		Assistants:    s.store,
		Conversations: s.store,
		PublicHost:    s.cfg.PublicHost,
		Logger:        s.logger,
	})
	s.mux.Handle("GET /v1/voice/stream/{conversation}", &handlers.StreamHandler{
		Store:    s.store,
		Registry: s.registry,
		Logger:   s.logger,
		CallConfig: call.Config{
			IdleTimeout:  s.cfg.CallIdleTimeout,
			WriteTimeout: s.cfg.CallWriteTimeout,
		},
		DialRealtime: s.dialRealtime,
	})
}

func (s *Server) dialRealtime(ctx context.Context) (call.Conn, error) {
	return realtime.Dial(ctx, realtime.DialConfig{
		URL:              s.cfg.RealtimeURL,
		APIKey:           s.cfg.OpenAIAPIKey,
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// ActiveCalls reports how many calls are currently bridged.
func (s *Server) ActiveCalls() int { return s.registry.Count() }

// DrainCalls hangs up every live call and waits for them to unwind, bounded
// by the context.
func (s *Server) DrainCalls(ctx context.Context) bool {
	s.registry.HangupAll()
	return s.registry.Wait(ctx)
}
