package realtime

import (
	"encoding/json"
	"errors"
	"time"
)

// Client to server events.
const (
	EventJoinSession    = "join-session"
	EventLeaveSession   = "leave-session"
	EventSessionMessage = "session-message"
	EventDirectMessage  = "direct-message"
)

// Server to client events.
const (
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
	// EventSessionMessage and EventDirectMessage keep their names outbound.
)

var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrConnClosed       = errors.New("connection closed")
)

// Frame is the JSON envelope exchanged with clients in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is one outbound message. Timestamp is assigned by the Router, never
// taken from the client.
type Event struct {
	Type      string
	Payload   any
	Sender    string
	Room      RoomID
	Timestamp time.Time
}

func (e Event) encode() ([]byte, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: e.Type, Data: data})
}

// Presence is the payload of user-joined and user-left.
type Presence struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// SessionMessage is the outbound session-message payload.
type SessionMessage struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DirectMessage is the outbound direct-message payload.
type DirectMessage struct {
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

type sessionMessageIn struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type directMessageIn struct {
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
}

// decodeSessionID accepts a bare JSON string, the shape clients send for
// join-session and leave-session.
func decodeSessionID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil || id == "" {
		return "", ErrMalformedPayload
	}
	return id, nil
}
