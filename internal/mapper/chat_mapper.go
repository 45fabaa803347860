package mapper

import (
	"counsel-chat-be/internal/entity"
	"counsel-chat-be/internal/model"

	"github.com/samber/lo"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Conversation Mappers

func (m *ChatMapper) ConversationToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}

	return &entity.Conversation{
		Id:           c.Id,
		ParticipantA: c.ParticipantA,
		ParticipantB: c.ParticipantB,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (m *ChatMapper) ConversationToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}

	return &model.Conversation{
		Id:           c.Id,
		ParticipantA: c.ParticipantA,
		ParticipantB: c.ParticipantB,
		PairKey:      c.PairKey(),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (m *ChatMapper) ConversationsToEntities(cs []*model.Conversation) []*entity.Conversation {
	return lo.Map(cs, func(c *model.Conversation, _ int) *entity.Conversation {
		return m.ConversationToEntity(c)
	})
}

// Message Mappers

func (m *ChatMapper) MessageToEntity(msg *model.Message) *entity.Message {
	if msg == nil {
		return nil
	}

	return &entity.Message{
		Id:             msg.Id,
		Seq:            msg.Seq,
		ConversationId: msg.ConversationId,
		SenderId:       msg.SenderId,
		RecipientId:    msg.RecipientId,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
		DeliveredAt:    msg.DeliveredAt,
		ReadAt:         msg.ReadAt,
	}
}

func (m *ChatMapper) MessageToModel(msg *entity.Message) *model.Message {
	if msg == nil {
		return nil
	}

	return &model.Message{
		Id:             msg.Id,
		Seq:            msg.Seq,
		ConversationId: msg.ConversationId,
		SenderId:       msg.SenderId,
		RecipientId:    msg.RecipientId,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
		DeliveredAt:    msg.DeliveredAt,
		ReadAt:         msg.ReadAt,
	}
}

func (m *ChatMapper) MessagesToEntities(msgs []*model.Message) []*entity.Message {
	return lo.Map(msgs, func(msg *model.Message, _ int) *entity.Message {
		return m.MessageToEntity(msg)
	})
}

// User Mappers

func (m *ChatMapper) UserToEntity(u *model.User) *entity.User {
	if u == nil {
		return nil
	}

	return &entity.User{
		Id:          u.Id,
		DisplayName: u.DisplayName,
		Role:        entity.UserRole(u.Role),
		IsOnline:    u.IsOnline,
		LastSeen:    u.LastSeen,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (m *ChatMapper) UserToModel(u *entity.User) *model.User {
	if u == nil {
		return nil
	}

	return &model.User{
		Id:          u.Id,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		IsOnline:    u.IsOnline,
		LastSeen:    u.LastSeen,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (m *ChatMapper) UsersToEntities(us []*model.User) []*entity.User {
	return lo.Map(us, func(u *model.User, _ int) *entity.User {
		return m.UserToEntity(u)
	})
}
