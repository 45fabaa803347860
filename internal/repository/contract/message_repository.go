package contract

import (
	"context"
	"time"

	"counsel-chat-be/internal/entity"

	"github.com/google/uuid"
)

type MessageRepository interface {
	// Append persists msg and bumps its conversation's UpdatedAt. Appends to the same
	// conversation are serialised and msg.CreatedAt is raised to the conversation's
	// UpdatedAt if it would go backwards, so (CreatedAt, Seq) follows insertion order.
	// Seq and CreatedAt are written back into msg.
	Append(ctx context.Context, msg *entity.Message) error
	FindById(ctx context.Context, id uuid.UUID) (*entity.Message, error)

	// ListByConversation returns messages with Seq > afterSeq ordered by (CreatedAt, Seq).
	// limit <= 0 means no limit.
	ListByConversation(ctx context.Context, conversationId uuid.UUID, afterSeq int64, limit int) ([]*entity.Message, error)

	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkDeliveredInbound fills DeliveredAt on every undelivered message addressed to recipientId.
	MarkDeliveredInbound(ctx context.Context, conversationId uuid.UUID, recipientId string, at time.Time) (int64, error)
	// MarkRead sets ReadAt (and DeliveredAt when still empty) on unread messages from senderId.
	MarkRead(ctx context.Context, conversationId uuid.UUID, senderId string, at time.Time) (int64, error)
	CountUnreadByConversation(ctx context.Context, recipientId string) (map[uuid.UUID]int64, error)
}
