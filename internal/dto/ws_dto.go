package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Inbound WebSocket event types.
const (
	WsEventJoin        = "join"
	WsEventSendMessage = "sendMessage"
	WsEventTyping      = "typing"
)

// Outbound WebSocket event types.
const (
	WsEventNewMessage       = "newMessage"
	WsEventMessageDelivered = "messageDelivered"
	WsEventMessageError     = "messageError"
	WsEventUserOnline       = "userOnline"
	WsEventUserOffline      = "userOffline"
	WsEventUserTyping       = "userTyping"
)

// WsEnvelope is the frame written to a client. Data is one of the payloads below,
// or a bare string for messageError, userOnline and userOffline.
type WsEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WsInboundFrame is a frame read from a client before its payload is decoded.
type WsInboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type JoinPayload struct {
	UserId string `json:"userId" validate:"required,userid"`
}

type SendMessagePayload struct {
	From    string `json:"from" validate:"required,userid"`
	To      string `json:"to" validate:"required,userid"`
	Content string `json:"content"`
}

type TypingPayload struct {
	From     string `json:"from" validate:"required,userid"`
	To       string `json:"to" validate:"required,userid"`
	IsTyping bool   `json:"isTyping"`
}

type NewMessagePayload struct {
	Id             uuid.UUID `json:"id"`
	ConversationId uuid.UUID `json:"conversationId"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	SenderName     string    `json:"senderName,omitempty"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

type MessageDeliveredPayload struct {
	Id        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserTypingPayload struct {
	From     string `json:"from"`
	IsTyping bool   `json:"isTyping"`
}
