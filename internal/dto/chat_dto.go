package dto

import (
	"time"

	"github.com/google/uuid"
)

type CounterpartResponse struct {
	Id          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	IsOnline    bool      `json:"is_online"`
	LastSeen    time.Time `json:"last_seen"`
}

type ListCounterpartsRequest struct {
	Role string `query:"role" validate:"omitempty,oneof=student counselor"`
}

type ConversationResponse struct {
	Id              uuid.UUID `json:"id"`
	ParticipantA    string    `json:"participant_a"`
	ParticipantB    string    `json:"participant_b"`
	CounterpartId   string    `json:"counterpart_id"`
	CounterpartName string    `json:"counterpart_name"`
	UnreadCount     int64     `json:"unread_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type StartConversationRequest struct {
	CounterpartId string `json:"counterpart_id" validate:"required,userid"`
}

type HistoryRequest struct {
	After int64 `query:"after" validate:"gte=0"`
	Limit int   `query:"limit" validate:"gte=0,lte=500"`
}

type MessageResponse struct {
	Id             uuid.UUID  `json:"id"`
	Seq            int64      `json:"seq"`
	ConversationId uuid.UUID  `json:"conversation_id"`
	SenderId       string     `json:"sender_id"`
	SenderName     string     `json:"sender_name,omitempty"`
	RecipientId    string     `json:"recipient_id"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	DeliveredAt    *time.Time `json:"delivered_at"`
	ReadAt         *time.Time `json:"read_at"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

// SendResult is what the dispatcher hands back to the sender.
type SendResult struct {
	MessageId      uuid.UUID
	ConversationId uuid.UUID
	CreatedAt      time.Time
	Delivered      bool
}
