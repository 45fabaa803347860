package entity

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the one-to-one thread between a student (ParticipantA) and a
// counselor (ParticipantB). Exactly one exists per unordered pair.
type Conversation struct {
	Id           uuid.UUID
	ParticipantA string
	ParticipantB string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c *Conversation) HasParticipant(userId string) bool {
	return c.ParticipantA == userId || c.ParticipantB == userId
}

// Counterpart returns the other participant, or "" if userId is not part of c.
func (c *Conversation) Counterpart(userId string) string {
	switch userId {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return ""
}

func (c *Conversation) PairKey() string {
	return PairKey(c.ParticipantA, c.ParticipantB)
}

// PairKey is the order-independent key of {a, b}. User ids never contain '|'.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
