package model

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ParticipantA string    `gorm:"type:varchar(128);not null;index"`
	ParticipantB string    `gorm:"type:varchar(128);not null;index"`
	PairKey      string    `gorm:"type:varchar(257);not null;uniqueIndex"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null;index"`
}

func (Conversation) TableName() string {
	return "conversations"
}
