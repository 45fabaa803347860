package contract

import (
	"context"
	"time"

	"counsel-chat-be/internal/entity"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	// FindOrCreate returns the conversation of the unordered pair {participantA, participantB},
	// creating it with this orientation and CreatedAt = UpdatedAt = now if absent.
	// created reports whether a new record was inserted.
	FindOrCreate(ctx context.Context, participantA, participantB string, now time.Time) (conv *entity.Conversation, created bool, err error)
	FindById(ctx context.Context, id uuid.UUID) (*entity.Conversation, error)
	FindByPair(ctx context.Context, a, b string) (*entity.Conversation, error)

	// ListForUser returns every conversation userId takes part in, most recently active first.
	ListForUser(ctx context.Context, userId string) ([]*entity.Conversation, error)
}
