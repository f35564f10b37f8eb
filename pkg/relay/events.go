package relay

import (
	"encoding/json"
	"time"
)

// Inbound event types
const (
	EventUserJoin    = "userJoin"
	EventChatMessage = "chatMessage"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
)

// Outbound event types
const (
	EventExistingUsers  = "existingUsers"
	EventUserJoined     = "userJoined"
	EventUserLeft       = "userLeft"
	EventMessage        = "message"
	EventMessageSent    = "messageSent"
	EventUserTyping     = "userTyping"
	EventUserStopTyping = "userStopTyping"
)

// Inbound is one decoded frame from a client. The payload stays raw until
// the router knows which shape to decode it into.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is one outbound frame to a client
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// JoinPayload announces a display identity on a fresh connection
type JoinPayload struct {
	Username     string `json:"username"`
	ProfileColor string `json:"profileColor"`
}

// ChatMessagePayload is a directed message addressed by display name
type ChatMessagePayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// TypingPayload addresses a typing or stop-typing notice by display name
type TypingPayload struct {
	To string `json:"to"`
}

// UserLeftPayload is broadcast when a connection goes offline
type UserLeftPayload struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	LastSeen time.Time `json:"lastSeen"`
}

// MessagePayload is delivered to the resolved recipient of a directed message
type MessagePayload struct {
	From         string    `json:"from"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	ProfileColor string    `json:"profileColor"`
}

// MessageSentPayload confirms a send back to its sender, delivered or not
type MessageSentPayload struct {
	To        string    `json:"to"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingNoticePayload carries the sender of a typing/stop-typing notice
type TypingNoticePayload struct {
	From string `json:"from"`
}

// Audience says who a delivery is addressed to
type Audience int

const (
	// AudienceConn targets one connection by id
	AudienceConn Audience = iota
	// AudienceAll targets every connected client
	AudienceAll
	// AudienceAllExcept targets every connected client but one
	AudienceAllExcept
)

// Delivery pairs an outbound event with its audience. Target is the
// destination connection for AudienceConn and the excluded connection for
// AudienceAllExcept.
type Delivery struct {
	Audience Audience
	Target   string
	Event    Event
}

// ToConn addresses an event to a single connection
func ToConn(connID string, typ string, data any) Delivery {
	return Delivery{Audience: AudienceConn, Target: connID, Event: Event{Type: typ, Data: data}}
}

// ToAll addresses an event to every connection
func ToAll(typ string, data any) Delivery {
	return Delivery{Audience: AudienceAll, Event: Event{Type: typ, Data: data}}
}

// ToAllExcept addresses an event to every connection but one
func ToAllExcept(excludeID string, typ string, data any) Delivery {
	return Delivery{Audience: AudienceAllExcept, Target: excludeID, Event: Event{Type: typ, Data: data}}
}
