package websocket

import (
	"bytes"
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/satriahrh/formcoach/domain/entities"
	"github.com/satriahrh/formcoach/usecase"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Inbound control message types
const (
	MessageTypePing          MessageType = "ping"
	MessageTypeStartSession  MessageType = "start_session"
	MessageTypeResumeSession MessageType = "resume_session"
	MessageTypeStopSession   MessageType = "stop_session"
	MessageTypePauseSession  MessageType = "pause_session"
)

// Outbound message types
const (
	MessageTypePong           MessageType = "pong"
	MessageTypeText           MessageType = "text"
	MessageTypeError          MessageType = "error"
	MessageTypeConnected      MessageType = "connected"
	MessageTypeSessionStarted MessageType = "session_started"
	MessageTypeSessionResumed MessageType = "session_resumed"
	MessageTypeSessionStopped MessageType = "session_stopped"
	MessageTypeSessionPaused  MessageType = "session_paused"
)

// Error texts sent to clients
const (
	ErrorTextInvalidImage   = "Invalid image data format"
	ErrorTextAnalysisFailed = "Failed to generate feedback"
)

// InboundKind tells whether an inbound message is control data or a frame
type InboundKind int

const (
	InboundFrame InboundKind = iota
	InboundControl
)

// Inbound is a classified inbound message
type Inbound struct {
	Kind InboundKind
	// Type is set for control messages; empty when the object had no string type
	Type  MessageType
	Frame usecase.RawFrame
}

// Classify separates control messages from frames. Only a text message
// holding a JSON object is control data; everything else is a frame.
func Classify(messageType int, payload []byte) Inbound {
	if messageType == websocket.BinaryMessage {
		return Inbound{Kind: InboundFrame, Frame: usecase.RawFrame{Data: payload, Binary: true}}
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err == nil {
			var msgType string
			if raw, ok := fields["type"]; ok {
				_ = json.Unmarshal(raw, &msgType)
			}
			return Inbound{Kind: InboundControl, Type: MessageType(msgType)}
		}
	}

	return Inbound{Kind: InboundFrame, Frame: usecase.RawFrame{Data: payload}}
}

// sessionTransition maps a session control type to the activity it sets
// and the acknowledgment to send back.
func sessionTransition(t MessageType) (activate bool, ack MessageType, ok bool) {
	switch t {
	case MessageTypeStartSession:
		return true, MessageTypeSessionStarted, true
	case MessageTypeResumeSession:
		return true, MessageTypeSessionResumed, true
	case MessageTypeStopSession:
		return false, MessageTypeSessionStopped, true
	case MessageTypePauseSession:
		return false, MessageTypeSessionPaused, true
	default:
		return false, "", false
	}
}

var ackTexts = map[MessageType]string{
	MessageTypeSessionStarted: "Session started",
	MessageTypeSessionResumed: "Session resumed",
	MessageTypeSessionStopped: "Session stopped",
	MessageTypeSessionPaused:  "Session paused",
}

// OutboundMessage is the envelope of every JSON message sent to clients
type OutboundMessage struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// CreatePongMessage creates a pong response message
func CreatePongMessage() OutboundMessage {
	return OutboundMessage{Type: MessageTypePong}
}

// CreateAckMessage creates the acknowledgment for a session transition
func CreateAckMessage(ack MessageType) OutboundMessage {
	return OutboundMessage{Type: ack, Data: ackTexts[ack]}
}

// CreateFeedbackMessage wraps a feedback record for delivery
func CreateFeedbackMessage(record entities.FeedbackRecord) OutboundMessage {
	return OutboundMessage{Type: MessageTypeText, Data: record}
}

// CreateErrorMessage creates an error message with a human-readable text
func CreateErrorMessage(text string) OutboundMessage {
	return OutboundMessage{Type: MessageTypeError, Data: text}
}

// CreateConnectedMessage announces a server-assigned client identity
func CreateConnectedMessage(clientID string) OutboundMessage {
	return OutboundMessage{Type: MessageTypeConnected, Data: map[string]string{"client_id": clientID}}
}
