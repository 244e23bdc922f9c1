package hub

import "github.com/user/ptyhub/internal/session"

// Client message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeSessionList = "session_list"
	TypeSpawn       = "spawn"
	TypeInput       = "input"
	TypeReadRaw     = "readRaw"
)

// Server message types not shared with the client side.
const (
	TypeSubscribed      = "subscribed"
	TypeUnsubscribed    = "unsubscribed"
	TypeRawData         = "raw_data"
	TypeReadRawResponse = "readRawResponse"
	TypeSessionUpdate   = "session_update"
	TypeError           = "error"
)

// ClientMessage is the union of every frame a viewer may send. Spawn
// frames carry the spawn options inline next to the type.
type ClientMessage struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId,omitempty"`
	Data      *string `json:"data,omitempty"`
	Subscribe bool    `json:"subscribe,omitempty"`
	session.SpawnOptions
}

type SubscriptionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type RawDataMessage struct {
	Type    string       `json:"type"`
	Session session.Info `json:"session"`
	RawData string       `json:"rawData"`
}

type ReadRawResponseMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	RawData   string `json:"rawData"`
}

type SessionListMessage struct {
	Type     string         `json:"type"`
	Sessions []session.Info `json:"sessions"`
}

type SessionUpdateMessage struct {
	Type    string       `json:"type"`
	Session session.Info `json:"session"`
}

type ErrorMessage struct {
	Type  string       `json:"type"`
	Error ErrorPayload `json:"error"`
}

// ErrorPayload keeps the error object shape existing viewers decode.
type ErrorPayload struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func newErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Error: ErrorPayload{Name: "CustomError", Message: message}}
}
