package implementation

import (
	"context"
	"errors"
	"time"

	"counsel-chat-be/internal/entity"
	"counsel-chat-be/internal/mapper"
	"counsel-chat-be/internal/model"
	"counsel-chat-be/internal/repository/contract"
	"counsel-chat-be/internal/repository/scope"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewMessageRepository(db *gorm.DB) contract.MessageRepository {
	return &MessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *MessageRepositoryImpl) Append(ctx context.Context, msg *entity.Message) error {
	ctx, span := otel.Tracer("repository").Start(ctx, "MessageRepository.Append", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Row lock on the conversation is the per-conversation ordering key.
		var conv model.Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", msg.ConversationId).
			First(&conv).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return contract.ErrRecordNotFound
			}
			return err
		}

		if msg.Id == uuid.Nil {
			msg.Id = uuid.New()
		}
		if msg.CreatedAt.Before(conv.UpdatedAt) {
			msg.CreatedAt = conv.UpdatedAt
		}

		m := r.mapper.MessageToModel(msg)
		if err := tx.Create(m).Error; err != nil {
			return err
		}

		err = tx.Model(&model.Conversation{}).
			Where("id = ?", conv.Id).
			Update("updated_at", m.CreatedAt).Error
		if err != nil {
			return err
		}

		*msg = *r.mapper.MessageToEntity(m)
		return nil
	})
}

func (r *MessageRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.Message, error) {
	var m model.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.MessageToEntity(&m), nil
}

func (r *MessageRepositoryImpl) ListByConversation(ctx context.Context, conversationId uuid.UUID, afterSeq int64, limit int) ([]*entity.Message, error) {
	var models []*model.Message
	err := r.db.WithContext(ctx).
		Scopes(scope.Chronological, scope.Paginate(limit)).
		Where("conversation_id = ? AND seq > ?", conversationId, afterSeq).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return r.mapper.MessagesToEntities(models), nil
}

func (r *MessageRepositoryImpl) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ? AND delivered_at IS NULL", id).
		Update("delivered_at", at).Error
}

func (r *MessageRepositoryImpl) MarkDeliveredInbound(ctx context.Context, conversationId uuid.UUID, recipientId string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ? AND recipient_id = ? AND delivered_at IS NULL", conversationId, recipientId).
		Update("delivered_at", at)
	return result.RowsAffected, result.Error
}

func (r *MessageRepositoryImpl) MarkRead(ctx context.Context, conversationId uuid.UUID, senderId string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id = ? AND read_at IS NULL", conversationId, senderId).
		Updates(map[string]interface{}{
			"read_at":      at,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", at),
		})
	return result.RowsAffected, result.Error
}

func (r *MessageRepositoryImpl) CountUnreadByConversation(ctx context.Context, recipientId string) (map[uuid.UUID]int64, error) {
	var rows []struct {
		ConversationId uuid.UUID
		Unread         int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Select("conversation_id, COUNT(*) AS unread").
		Where("recipient_id = ? AND read_at IS NULL", recipientId).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		counts[row.ConversationId] = row.Unread
	}
	return counts, nil
}
