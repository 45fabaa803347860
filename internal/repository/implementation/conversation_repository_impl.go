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
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewConversationRepository(db *gorm.DB) contract.ConversationRepository {
	return &ConversationRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ConversationRepositoryImpl) FindOrCreate(ctx context.Context, participantA, participantB string, now time.Time) (*entity.Conversation, bool, error) {
	conv := &entity.Conversation{
		Id:           uuid.New(),
		ParticipantA: participantA,
		ParticipantB: participantB,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m := r.mapper.ConversationToModel(conv)

	// The unique pair_key turns a racing second insert into a no-op.
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_key"}},
			DoNothing: true,
		}).
		Create(m)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return r.mapper.ConversationToEntity(m), true, nil
	}

	var existing model.Conversation
	if err := r.db.WithContext(ctx).Where("pair_key = ?", m.PairKey).First(&existing).Error; err != nil {
		return nil, false, err
	}
	return r.mapper.ConversationToEntity(&existing), false, nil
}

func (r *ConversationRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.Conversation, error) {
	var m model.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ConversationToEntity(&m), nil
}

func (r *ConversationRepositoryImpl) FindByPair(ctx context.Context, a, b string) (*entity.Conversation, error) {
	var m model.Conversation
	if err := r.db.WithContext(ctx).Where("pair_key = ?", entity.PairKey(a, b)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ConversationToEntity(&m), nil
}

func (r *ConversationRepositoryImpl) ListForUser(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	var models []*model.Conversation
	err := r.db.WithContext(ctx).
		Scopes(scope.OrderByUpdatedDesc).
		Where("participant_a = ? OR participant_b = ?", userId, userId).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return r.mapper.ConversationsToEntities(models), nil
}
