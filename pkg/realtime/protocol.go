// Package realtime speaks the speech-model backend's websocket protocol:
// typed outbound messages and a closed set of tagged inbound events.
package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Session configuration sent as the first message on every call.

type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
	InterruptResponse bool    `json:"interrupt_response"`
}

type Transcription struct {
	Model    string `json:"model"`
	Language string `json:"language"`
}

type SessionConfig struct {
	TurnDetection     TurnDetection `json:"turn_detection"`
	InputAudioFormat  string        `json:"input_audio_format"`
	OutputAudioFormat string        `json:"output_audio_format"`
	Transcription     Transcription `json:"input_audio_transcription"`
	Voice             string        `json:"voice"`
	Instructions      string        `json:"instructions"`
	Modalities        []string      `json:"modalities"`
	Temperature       float64       `json:"temperature"`
}

type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// NewSessionUpdate fills the fixed relay settings: server VAD with
// interruption, mu-law audio both ways, whisper transcription, text+audio
// modalities.
func NewSessionUpdate(voice, instructions string) SessionUpdate {
	return SessionUpdate{
		Type: "session.update",
		Session: SessionConfig{
			TurnDetection: TurnDetection{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMS:   100,
				SilenceDurationMS: 200,
				CreateResponse:    true,
				InterruptResponse: true,
			},
			InputAudioFormat:  "g711_ulaw",
			OutputAudioFormat: "g711_ulaw",
			Transcription:     Transcription{Model: "whisper-1", Language: "en"},
			Voice:             voice,
			Instructions:      instructions,
			Modalities:        []string{"text", "audio"},
			Temperature:       0.7,
		},
	}
}

// AudioAppend forwards one opaque base64 caller-audio frame.
type AudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func NewAudioAppend(payload string) AudioAppend {
	return AudioAppend{Type: "input_audio_buffer.append", Audio: payload}
}

// ItemTruncate cuts an in-flight assistant response at the given offset.
type ItemTruncate struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMS   int64  `json:"audio_end_ms"`
}

func NewItemTruncate(itemID string, audioEndMS int64) ItemTruncate {
	return ItemTruncate{
		Type:       "conversation.item.truncate",
		ItemID:     itemID,
		AudioEndMS: audioEndMS,
	}
}

// Event is one inbound backend message. The set is closed; decode callers
// switch exhaustively with UnknownEvent as the visible default.
type Event interface {
	realtimeEvent() string
}

// SessionReadyEvent confirms the session configuration took effect.
type SessionReadyEvent struct{}

func (SessionReadyEvent) realtimeEvent() string { return "session.ready" }

// SpeechStartedEvent fires when the caller talks over the assistant.
type SpeechStartedEvent struct {
	ItemID       string
	AudioStartMS int64
}

func (SpeechStartedEvent) realtimeEvent() string { return "input_audio_buffer.speech_started" }

// SpeechFinalEvent carries the final caller utterance transcript.
type SpeechFinalEvent struct {
	Text string
}

func (SpeechFinalEvent) realtimeEvent() string { return "input_audio_buffer.speech_final" }

// TranscriptionCompletedEvent carries a whisper transcript of caller audio.
type TranscriptionCompletedEvent struct {
	Transcript string
}

func (TranscriptionCompletedEvent) realtimeEvent() string {
	return "conversation.item.input_audio_transcription.completed"
}

// AudioDeltaEvent is one base64 chunk of assistant audio.
type AudioDeltaEvent struct {
	Delta string
}

func (AudioDeltaEvent) realtimeEvent() string { return "response.audio.delta" }

// ContentDeltaEvent is one incremental chunk of assistant text.
type ContentDeltaEvent struct {
	Delta string
}

func (ContentDeltaEvent) realtimeEvent() string { return "response.content.delta" }

// ResponseDoneEvent marks a completed assistant turn. Transcript is the full
// turn text when the backend includes it in the response output.
type ResponseDoneEvent struct {
	Transcript string
}

func (ResponseDoneEvent) realtimeEvent() string { return "response.done" }

// UnknownEvent is any backend event kind this package does not model.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) realtimeEvent() string { return e.Type }

// DecodeEvent parses one inbound backend message into its tagged variant.
func DecodeEvent(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode realtime envelope: %w", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, fmt.Errorf("realtime event missing type")
	}

	switch typ {
	case "session.ready":
		return SessionReadyEvent{}, nil
	case "input_audio_buffer.speech_started":
		var msg struct {
			ItemID       string `json:"item_id"`
			AudioStartMS int64  `json:"audio_start_ms"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode speech_started: %w", err)
		}
		return SpeechStartedEvent{ItemID: msg.ItemID, AudioStartMS: msg.AudioStartMS}, nil
	case "input_audio_buffer.speech_final":
		var msg struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode speech_final: %w", err)
		}
		return SpeechFinalEvent{Text: msg.Text}, nil
	case "conversation.item.input_audio_transcription.completed":
		var msg struct {
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode transcription completed: %w", err)
		}
		return TranscriptionCompletedEvent{Transcript: msg.Transcript}, nil
	case "response.audio.delta":
		var msg struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode audio delta: %w", err)
		}
		return AudioDeltaEvent{Delta: msg.Delta}, nil
	case "response.content.delta":
		var msg struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode content delta: %w", err)
		}
		return ContentDeltaEvent{Delta: msg.Delta}, nil
	case "response.done":
		var msg struct {
			Response struct {
				Output []struct {
					Content []struct {
						Transcript string `json:"transcript"`
					} `json:"content"`
				} `json:"output"`
			} `json:"response"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode response done: %w", err)
		}
		var transcript string
		for _, item := range msg.Response.Output {
			for _, content := range item.Content {
				if content.Transcript != "" {
					transcript = content.Transcript
				}
			}
		}
		return ResponseDoneEvent{Transcript: transcript}, nil
	default:
		return UnknownEvent{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
