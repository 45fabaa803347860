package entity

import (
	"time"

	"github.com/google/uuid"
)

// Message is immutable once appended; only DeliveredAt and ReadAt are ever filled in.
type Message struct {
	Id             uuid.UUID
	Seq            int64
	ConversationId uuid.UUID
	SenderId       string
	RecipientId    string
	Content        string
	CreatedAt      time.Time
	DeliveredAt    *time.Time
	ReadAt         *time.Time
}
