package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/twilio/twilio-go/twiml"

	"github.com/voicedesk/voicedesk/pkg/store"
)

// VoiceWebhook answers the telephony provider's incoming-call webhook. It
// resolves the dialed number to an assistant, finds or creates the caller's
// conversation, and returns TwiML that connects the call's media stream to
// this server's websocket endpoint.
type VoiceWebhook struct {
	Assistants    store.AssistantStore
	Conversations store.ConversationStore

	// PublicHost overrides the Host header when building the stream URL.
	// Needed behind tunnels and load balancers.
	PublicHost string

	Logger *slog.Logger
}

func (h VoiceWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	to := r.PostFormValue("To")
	from := r.PostFormValue("From")
	if to == "" || from == "" {
		http.Error(w, "To and From are required", http.StatusBadRequest)
		return
	}

	assistant, err := h.Assistants.AssistantByNumber(r.Context(), to)
	if errors.Is(err, store.ErrNotFound) {
		h.log().Warn("no assistant for dialed number", "to", to)
		http.Error(w, "unknown number", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log().Error("assistant lookup failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	convo, err := h.Conversations.FindOrCreateConversation(r.Context(), assistant.ID, from)
	if err != nil {
		h.log().Error("find or create conversation failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	host := h.PublicHost
	if host == "" {
		host = r.Host
	}

	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceConnect{
			InnerElements: []twiml.Element{
				&twiml.VoiceStream{Url: "wss://" + host + "/v1/voice/stream/" + convo.ID},
			},
		},
	})
	if err != nil {
		h.log().Error("twiml render failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.log().Info("incoming call routed", "assistant_id", assistant.ID, "conversation_id", convo.ID)
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(doc))
}

func (h VoiceWebhook) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
