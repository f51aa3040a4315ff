package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voicedesk/voicedesk/pkg/bridge/call"
	"github.com/voicedesk/voicedesk/pkg/bridge/calls"
	"github.com/voicedesk/voicedesk/pkg/store"
)

// StreamHandler upgrades the media-stream websocket for one conversation,
// dials the speech backend, and runs the bridge session until the call ends.
type StreamHandler struct {
	Store    store.Store
	Registry *calls.Registry
	Logger   *slog.Logger

	CallConfig call.Config

	// DialRealtime opens the speech-backend leg for one call. Tests
	// substitute a fake.
	DialRealtime func(ctx context.Context) (call.Conn, error)

	Upgrader websocket.Upgrader
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversation")
	if conversationID == "" {
		http.Error(w, "conversation id is required", http.StatusBadRequest)
		return
	}

	convo, err := h.Store.Conversation(r.Context(), conversationID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "unknown conversation", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log().Error("conversation lookup failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	assistant, err := h.Store.LoadAssistantProfile(r.Context(), convo.AssistantID)
	if err != nil {
		h.log().Error("assistant lookup failed", "err", err, "assistant_id", convo.AssistantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	telephony, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log().Warn("websocket upgrade failed", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	backend, err := h.DialRealtime(ctx)
	if err != nil {
		h.log().Error("speech backend dial failed", "err", err)
		_ = telephony.Close()
		return
	}

	callID := uuid.NewString()
	session, err := call.New(h.CallConfig, call.Dependencies{
		Telephony:      telephony,
		Realtime:       backend,
		Transcripts:    h.Store,
		Bookings:       h.Store,
		Assistant:      assistant,
		ConversationID: convo.ID,
		CallID:         callID,
		Logger:         h.Logger,
	})
	if err != nil {
		h.log().Error("session setup failed", "err", err)
		_ = telephony.Close()
		_ = backend.Close()
		return
	}

	unregister := h.Registry.Register(callID, calls.Handle{
		Hangup: cancel,
		State:  func() string { return session.State().String() },
	})
	defer unregister()

	switch err := session.Run(ctx); {
	case err == nil:
	case errors.Is(err, call.ErrIdleTimeout), errors.Is(err, context.Canceled):
		h.log().Warn("call ended early", "call_id", callID, "err", err)
	default:
		h.log().Error("call failed", "call_id", callID, "err", err)
	}
}

func (h *StreamHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
