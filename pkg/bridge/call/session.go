package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicedesk/voicedesk/pkg/booking"
	"github.com/voicedesk/voicedesk/pkg/realtime"
	"github.com/voicedesk/voicedesk/pkg/store"
	"github.com/voicedesk/voicedesk/pkg/telephony"
)

// ErrIdleTimeout is returned when neither relay leg produces an event within
// the configured idle window. A peer that stops sending without closing must
// not hang the session forever.
var ErrIdleTimeout = errors.New("call: idle timeout waiting for relay events")

// TransportError wraps a websocket failure on one relay leg. It is never
// retried; the session tears both legs down immediately.
type TransportError struct {
	Leg string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("call: %s transport: %v", e.Leg, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError wraps a booking store rejection. It is fatal for the
// session: retrying blind against a live call is unsafe.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("call: persist booking: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Conn is the websocket surface a relay leg needs. *websocket.Conn and the
// realtime client both satisfy it; tests substitute fakes.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Config struct {
	// IdleTimeout bounds both blocking waits.
	IdleTimeout time.Duration
	// WriteTimeout bounds every outbound websocket write.
	WriteTimeout time.Duration
}

// Dependencies wires one session. All fields are required except Logger and
// Now, which default to slog.Default and time.Now.
type Dependencies struct {
	Telephony Conn
	Realtime  Conn

	Transcripts store.TranscriptStore
	Bookings    store.BookingStore

	Assistant      store.Assistant
	ConversationID string
	CallID         string

	Logger *slog.Logger
	Now    func() time.Time
}

// Session owns one bridged call from configuration to teardown. It is not
// safe for concurrent use; Run drives everything.
type Session struct {
	cfg  Config
	deps Dependencies
	log  *slog.Logger
	now  func() time.Time

	// state is only mutated by Run's event loop; the atomic lets the
	// registry and tests observe it from outside.
	state      atomic.Int32
	streamSID  string
	suppressed bool
	stopped    bool
	turn       blockDetector
}

func New(cfg Config, deps Dependencies) (*Session, error) {
	if deps.Telephony == nil {
		return nil, errors.New("call: telephony connection is required")
	}
	if deps.Realtime == nil {
		return nil, errors.New("call: realtime connection is required")
	}
	if deps.Transcripts == nil {
		return nil, errors.New("call: transcript store is required")
	}
	if deps.Bookings == nil {
		return nil, errors.New("call: booking store is required")
	}
	if deps.Assistant.ID == "" {
		return nil, errors.New("call: assistant profile is required")
	}
	if deps.ConversationID == "" {
		return nil, errors.New("call: conversation id is required")
	}
	if cfg.IdleTimeout <= 0 {
		return nil, errors.New("call: idle timeout must be > 0")
	}
	if cfg.WriteTimeout <= 0 {
		return nil, errors.New("call: write timeout must be > 0")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("call_id", deps.CallID, "conversation_id", deps.ConversationID)

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		cfg:  cfg,
		deps: deps,
		log:  logger,
		now:  now,
	}
	s.setState(StateInit)
	return s, nil
}

// State exposes the current lifecycle state, for the registry and tests.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

type inboundFrame struct {
	data []byte
	err  error
}

// Run bridges the call until the state machine reaches Closed: a confirmed
// booking, a hangup, a transport failure, or the idle timeout. Both legs are
// closed before Run returns, whatever the exit path.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.teardown()

	if err := s.configure(ctx); err != nil {
		return err
	}
	s.setState(StateAwaitingStream)

	telCh := make(chan inboundFrame, 16)
	rtCh := make(chan inboundFrame, 16)
	go readLoop(ctx, s.deps.Telephony, telCh)
	go readLoop(ctx, s.deps.Realtime, rtCh)

	idle := time.NewTimer(s.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			s.log.Warn("call idle timeout", "timeout", s.cfg.IdleTimeout)
			return ErrIdleTimeout
		case frame := <-telCh:
			resetTimer(idle, s.cfg.IdleTimeout)
			if frame.err != nil {
				return s.legClosed("telephony", frame.err)
			}
			if err := s.handleTelephonyFrame(frame.data); err != nil {
				return err
			}
		case frame := <-rtCh:
			resetTimer(idle, s.cfg.IdleTimeout)
			if frame.err != nil {
				return s.legClosed("realtime", frame.err)
			}
			done, err := s.handleRealtimeFrame(ctx, frame.data)
			if err != nil {
				return err
			}
			if done {
				// Booking persisted; hang up the caller side first.
				_ = s.deps.Telephony.Close()
				return nil
			}
		}
	}
}

// configure sends the opening session.update: voice, VAD, audio formats, and
// instructions built from the profile, today's availability, and the prior
// transcript.
func (s *Session) configure(ctx context.Context) error {
	a := s.deps.Assistant
	today := s.now()

	history, err := s.deps.Transcripts.LoadTranscript(ctx, s.deps.ConversationID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}

	slots, err := booking.GenerateSlots(a.StartTime, a.EndTime, a.SlotDurationMinutes, a.AvailableDays, today)
	if err != nil {
		return fmt.Errorf("generate slots: %w", err)
	}
	booked, err := s.deps.Bookings.LoadBookedSlots(ctx, a.ID, today)
	if err != nil {
		return fmt.Errorf("load booked slots: %w", err)
	}

	var available, taken []string
	for _, slot := range slots {
		if _, ok := booked[slot]; ok {
			taken = append(taken, slot)
			continue
		}
		available = append(available, slot)
	}

	voice := "coral"
	if strings.EqualFold(a.VoiceType, "male") {
		voice = "alloy"
	}

	instructions := BuildInstructions(a, history, available, taken)
	if err := s.writeRealtime(realtime.NewSessionUpdate(voice, instructions)); err != nil {
		return err
	}
	s.log.Info("session configured", "voice", voice, "available_slots", len(available), "booked_slots", len(taken))
	return nil
}

func (s *Session) handleTelephonyFrame(data []byte) error {
	ev, err := telephony.DecodeEvent(data)
	if err != nil {
		s.log.Warn("malformed telephony event skipped", "err", err)
		return nil
	}
	switch ev := ev.(type) {
	case telephony.StartEvent:
		if s.State() != StateAwaitingStream {
			return nil
		}
		s.streamSID = ev.StreamSID
		s.setState(StateActive)
		s.log.Info("media stream started", "stream_sid", ev.StreamSID)
	case telephony.MediaEvent:
		if !s.State().forwarding() || s.stopped {
			return nil
		}
		return s.writeRealtime(realtime.NewAudioAppend(ev.Payload))
	case telephony.StopEvent:
		// Inbound forwarding ends; the session lives on until the far end
		// disconnects or a booking finalizes the call.
		s.stopped = true
		s.log.Info("media stream stopped")
	case telephony.UnknownEvent:
		s.log.Debug("unhandled telephony event", "event", ev.Event)
	}
	return nil
}

func (s *Session) handleRealtimeFrame(ctx context.Context, data []byte) (done bool, err error) {
	ev, err := realtime.DecodeEvent(data)
	if err != nil {
		s.log.Warn("malformed realtime event skipped", "err", err)
		return false, nil
	}

	switch ev := ev.(type) {
	case realtime.SessionReadyEvent:
		s.log.Info("realtime session ready")

	case realtime.SpeechStartedEvent:
		if s.State() != StateActive {
			return false, nil
		}
		// Barge-in: truncate the in-flight response, then flush buffered
		// playback, in that order, before any later delta is handled.
		s.setState(StateInterrupted)
		if err := s.writeRealtime(realtime.NewItemTruncate(ev.ItemID, ev.AudioStartMS)); err != nil {
			return false, err
		}
		if err := s.clearPlayback(); err != nil {
			return false, err
		}
		s.setState(StateActive)
		s.log.Info("caller interrupted assistant", "item_id", ev.ItemID, "audio_start_ms", ev.AudioStartMS)

	case realtime.SpeechFinalEvent:
		s.appendTranscript(ctx, "user", ev.Text)

	case realtime.TranscriptionCompletedEvent:
		s.appendTranscript(ctx, "user", ev.Transcript)

	case realtime.AudioDeltaEvent:
		if s.State() != StateActive || s.suppressed || ev.Delta == "" {
			return false, nil
		}
		frame, err := telephony.MediaFrame(s.streamSID, ev.Delta)
		if err != nil {
			return false, err
		}
		return false, s.writeTelephony(frame)

	case realtime.ContentDeltaEvent:
		if s.State().Terminal() {
			return false, nil
		}
		if s.turn.feed(ev.Delta) && !s.suppressed {
			// A structured block is being spoken; mute it before the raw
			// JSON reaches the caller.
			s.suppressed = true
			if err := s.clearPlayback(); err != nil {
				return false, err
			}
			s.log.Info("booking block detected, audio suppressed")
		}

	case realtime.ResponseDoneEvent:
		return s.finishTurn(ctx, ev.Transcript)

	case realtime.UnknownEvent:
		s.log.Debug("unhandled realtime event", "type", ev.Type)
	}
	return false, nil
}

// finishTurn closes out one assistant turn: records the transcript, runs the
// extractor over the accumulated text, and persists a valid confirmed
// booking exactly once.
func (s *Session) finishTurn(ctx context.Context, transcript string) (done bool, err error) {
	text := transcript
	if text == "" {
		text = s.turn.text()
	}
	s.turn.reset()
	s.suppressed = false

	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	s.appendTranscript(ctx, "assistant", text)

	if s.State() != StateActive {
		return false, nil
	}

	_, draft, extractErr := booking.Extract(text, s.now())
	if extractErr != nil {
		s.log.Warn("booking block failed validation, draft discarded", "err", extractErr)
		return false, nil
	}
	if draft == nil {
		return false, nil
	}

	if !s.slotIsBookable(ctx, draft) {
		return false, nil
	}

	// Transition before the insert so a repeated block on a later turn can
	// never trigger a second persistence attempt.
	s.setState(StateFinalizing)

	id, persistErr := s.deps.Bookings.PersistBooking(ctx, s.deps.Assistant.ID, draft.Date, draft.Time, draft.Name, draft.Details)
	if persistErr != nil {
		return false, &PersistenceError{Err: persistErr}
	}
	s.log.Info("booking confirmed",
		"booking_id", id,
		"date", draft.Date.Format("2006-01-02"),
		"slot", draft.SlotLabel(),
		"customer", draft.Name,
	)
	return true, nil
}

// slotIsBookable checks the draft against the calculated schedule and the
// taken slots for its date. Failures discard the draft and let the
// conversation continue.
func (s *Session) slotIsBookable(ctx context.Context, draft *booking.Draft) bool {
	a := s.deps.Assistant
	label := draft.SlotLabel()

	slots, err := booking.GenerateSlots(a.StartTime, a.EndTime, a.SlotDurationMinutes, a.AvailableDays, draft.Date)
	if err != nil {
		s.log.Warn("slot validation failed, draft discarded", "err", err)
		return false
	}
	found := false
	for _, slot := range slots {
		if slot == label {
			found = true
			break
		}
	}
	if !found {
		s.log.Warn("confirmed slot outside business schedule, draft discarded",
			"slot", label, "date", draft.Date.Format("2006-01-02"))
		return false
	}

	booked, err := s.deps.Bookings.LoadBookedSlots(ctx, a.ID, draft.Date)
	if err != nil {
		s.log.Warn("booked slot lookup failed, draft discarded", "err", err)
		return false
	}
	if _, taken := booked[label]; taken {
		s.log.Warn("confirmed slot already booked, draft discarded",
			"slot", label, "date", draft.Date.Format("2006-01-02"))
		return false
	}
	return true
}

// clearPlayback flushes the telephony-side playback buffer. Before the start
// event there is no stream to address and nothing buffered, so it is a no-op.
func (s *Session) clearPlayback() error {
	if s.streamSID == "" {
		return nil
	}
	frame, err := telephony.ClearFrame(s.streamSID)
	if err != nil {
		return err
	}
	return s.writeTelephony(frame)
}

func (s *Session) appendTranscript(ctx context.Context, role, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	if err := s.deps.Transcripts.AppendTranscript(ctx, s.deps.ConversationID, role, content); err != nil {
		s.log.Error("append transcript failed", "role", role, "err", err)
	}
}

// legClosed maps a read error on one leg to the session outcome. A clean
// close is a normal hangup; anything else is a transport failure.
func (s *Session) legClosed(leg string, err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.log.Info("peer closed connection", "leg", leg)
		return nil
	}
	return &TransportError{Leg: leg, Err: err}
}

func (s *Session) writeRealtime(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode realtime message: %w", err)
	}
	_ = s.deps.Realtime.SetWriteDeadline(s.now().Add(s.cfg.WriteTimeout))
	if err := s.deps.Realtime.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Leg: "realtime", Err: err}
	}
	return nil
}

func (s *Session) writeTelephony(data []byte) error {
	_ = s.deps.Telephony.SetWriteDeadline(s.now().Add(s.cfg.WriteTimeout))
	if err := s.deps.Telephony.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Leg: "telephony", Err: err}
	}
	return nil
}

// teardown closes both legs. Ending either path must end the other; a
// half-bridged call is unrecoverable.
func (s *Session) teardown() {
	s.setState(StateClosed)
	_ = s.deps.Telephony.Close()
	_ = s.deps.Realtime.Close()
}

func readLoop(ctx context.Context, conn Conn, ch chan<- inboundFrame) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case ch <- inboundFrame{err: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case ch <- inboundFrame{data: data}:
		case <-ctx.Done():
			return
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
