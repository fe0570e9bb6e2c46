package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/satriahrh/formcoach/domain/entities"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		messageType int
		payload     string
		wantKind    InboundKind
		wantType    MessageType
	}{
		{"ping", websocket.TextMessage, `{"type":"ping"}`, InboundControl, MessageTypePing},
		{"start with padding", websocket.TextMessage, "  {\"type\": \"start_session\"}\n", InboundControl, MessageTypeStartSession},
		{"unknown type", websocket.TextMessage, `{"type":"dance"}`, InboundControl, "dance"},
		{"missing type", websocket.TextMessage, `{"foo":"bar"}`, InboundControl, ""},
		{"non string type", websocket.TextMessage, `{"type":42}`, InboundControl, ""},
		{"base64 text", websocket.TextMessage, "/9j/4AAQSkZJRg==", InboundFrame, ""},
		{"json array", websocket.TextMessage, `["ping"]`, InboundFrame, ""},
		{"broken json", websocket.TextMessage, `{"type":`, InboundFrame, ""},
		{"json string", websocket.TextMessage, `"ping"`, InboundFrame, ""},
		{"binary json", websocket.BinaryMessage, `{"type":"ping"}`, InboundFrame, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.messageType, []byte(tt.payload))
			if got.Kind != tt.wantKind {
				t.Fatalf("Classify() kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Type != tt.wantType {
				t.Errorf("Classify() type = %q, want %q", got.Type, tt.wantType)
			}
			if got.Kind == InboundFrame {
				if string(got.Frame.Data) != tt.payload {
					t.Errorf("Frame data = %q, want %q", got.Frame.Data, tt.payload)
				}
				if got.Frame.Binary != (tt.messageType == websocket.BinaryMessage) {
					t.Errorf("Frame binary = %v", got.Frame.Binary)
				}
			}
		})
	}
}

func TestSessionTransition(t *testing.T) {
	tests := []struct {
		msgType      MessageType
		wantActivate bool
		wantAck      MessageType
		wantOK       bool
	}{
		{MessageTypeStartSession, true, MessageTypeSessionStarted, true},
		{MessageTypeResumeSession, true, MessageTypeSessionResumed, true},
		{MessageTypeStopSession, false, MessageTypeSessionStopped, true},
		{MessageTypePauseSession, false, MessageTypeSessionPaused, true},
		{MessageTypePing, false, "", false},
		{"", false, "", false},
	}

	for _, tt := range tests {
		activate, ack, ok := sessionTransition(tt.msgType)
		if activate != tt.wantActivate || ack != tt.wantAck || ok != tt.wantOK {
			t.Errorf("sessionTransition(%q) = (%v, %q, %v), want (%v, %q, %v)",
				tt.msgType, activate, ack, ok, tt.wantActivate, tt.wantAck, tt.wantOK)
		}
	}
}

func TestOutboundMessages(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		msg  OutboundMessage
		want string
	}{
		{"pong", CreatePongMessage(), `{"type":"pong"}`},
		{"ack", CreateAckMessage(MessageTypeSessionStarted), `{"type":"session_started","data":"Session started"}`},
		{"error", CreateErrorMessage(ErrorTextInvalidImage), `{"type":"error","data":"Invalid image data format"}`},
		{"connected", CreateConnectedMessage("abc"), `{"type":"connected","data":{"client_id":"abc"}}`},
		{
			"feedback",
			CreateFeedbackMessage(entities.NewFeedbackRecord(at, "Lower your hips", "squat", true)),
			`{"type":"text","data":{"timestamp":"2024-05-01T10:00:00Z","feedback":"Lower your hips","exercise_type":"squat","audio_available":true}}`,
		},
		{
			"feedback without exercise",
			CreateFeedbackMessage(entities.NewFeedbackRecord(at, "Brace your core", "", false)),
			`{"type":"text","data":{"timestamp":"2024-05-01T10:00:00Z","feedback":"Brace your core","exercise_type":null,"audio_available":false}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			var got, want interface{}
			if err := json.Unmarshal(payload, &got); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if err := json.Unmarshal([]byte(tt.want), &want); err != nil {
				t.Fatalf("bad expectation: %v", err)
			}
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("got %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}
