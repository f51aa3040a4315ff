// Package telephony speaks the Twilio media-stream websocket protocol: tagged
// inbound events (start/media/stop) and outbound media/clear frames. Audio
// payloads are opaque base64 G.711 mu-law and are never decoded here.
package telephony

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event is one inbound media-stream message. The set is closed: decode
// callers switch exhaustively, with UnknownEvent as the visible default.
type Event interface {
	streamEvent() string
}

// StartEvent announces the stream and carries the SID outbound frames must
// address.
type StartEvent struct {
	StreamSID string
}

func (StartEvent) streamEvent() string { return "start" }

// MediaEvent carries one base64 audio frame from the caller.
type MediaEvent struct {
	Payload string
}

func (MediaEvent) streamEvent() string { return "media" }

// StopEvent ends inbound audio for the stream.
type StopEvent struct{}

func (StopEvent) streamEvent() string { return "stop" }

// UnknownEvent is any event kind this package does not model (e.g. "mark").
type UnknownEvent struct {
	Event string
	Raw   json.RawMessage
}

func (e UnknownEvent) streamEvent() string { return e.Event }

type inboundEnvelope struct {
	Event string `json:"event"`
	Start *struct {
		StreamSID string `json:"streamSid"`
	} `json:"start"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// DecodeEvent parses one inbound media-stream message.
func DecodeEvent(data []byte) (Event, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode stream event: %w", err)
	}
	switch strings.TrimSpace(env.Event) {
	case "start":
		if env.Start == nil || strings.TrimSpace(env.Start.StreamSID) == "" {
			return nil, fmt.Errorf("start event missing streamSid")
		}
		return StartEvent{StreamSID: env.Start.StreamSID}, nil
	case "media":
		if env.Media == nil {
			return nil, fmt.Errorf("media event missing media payload")
		}
		return MediaEvent{Payload: env.Media.Payload}, nil
	case "stop":
		return StopEvent{}, nil
	case "":
		return nil, fmt.Errorf("stream event missing event field")
	default:
		return UnknownEvent{Event: env.Event, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

type outboundMedia struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// MediaFrame builds an outbound audio frame addressed to streamSID.
func MediaFrame(streamSID, payload string) ([]byte, error) {
	frame := outboundMedia{Event: "media", StreamSID: streamSID}
	frame.Media.Payload = payload
	return json.Marshal(frame)
}

// ClearFrame builds the flush instruction that drops buffered playback.
func ClearFrame(streamSID string) ([]byte, error) {
	return json.Marshal(outboundClear{Event: "clear", StreamSID: streamSID})
}
