package model

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	Id             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Seq            int64      `gorm:"autoIncrement;uniqueIndex;not null"`
	ConversationId uuid.UUID  `gorm:"type:uuid;not null;index:idx_messages_conversation_order,priority:1"`
	SenderId       string     `gorm:"type:varchar(128);not null;index"`
	RecipientId    string     `gorm:"type:varchar(128);not null;index:idx_messages_recipient_unread,priority:1"`
	Content        string     `gorm:"type:text;not null"`
	CreatedAt      time.Time  `gorm:"not null;index:idx_messages_conversation_order,priority:2"`
	DeliveredAt    *time.Time
	ReadAt         *time.Time `gorm:"index:idx_messages_recipient_unread,priority:2"`
}

func (Message) TableName() string {
	return "messages"
}
