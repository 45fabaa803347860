package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"counsel-chat-be/internal/dto"
	"counsel-chat-be/internal/entity"
	"counsel-chat-be/internal/pkg/logger"
	"counsel-chat-be/internal/pkg/serverutils"
	"counsel-chat-be/internal/presence"
	"counsel-chat-be/internal/repository/unitofwork"
	"counsel-chat-be/pkg/events"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PresenceLookup is the read side of the presence registry.
type PresenceLookup interface {
	Lookup(userID string) (presence.Conn, bool)
	IsOnline(userID string) bool
	LastSeen(userID string) (time.Time, bool)
}

//go:generate mockgen -destination=mocks/mock_event_publisher.go -package=mocks counsel-chat-be/internal/service EventPublisher

// EventPublisher publishes integration events. A nil publisher disables them.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IChatService interface {
	// Send persists a message and pushes it to the recipient when online.
	Send(ctx context.Context, senderId, recipientId, content string) (*dto.SendResult, error)
	// HandleSend runs Send and reports the outcome on the sender's connection.
	HandleSend(ctx context.Context, sender presence.Conn, senderId, recipientId, content string)

	History(ctx context.Context, callerId string, conversationId uuid.UUID, request dto.HistoryRequest) ([]*dto.MessageResponse, error)
	PairHistory(ctx context.Context, callerId, counterpartId string) ([]*dto.MessageResponse, error)
	MarkRead(ctx context.Context, recipientId, senderId string) (int64, error)

	StartConversation(ctx context.Context, callerId, counterpartId string) (*dto.ConversationResponse, error)
	ListConversations(ctx context.Context, callerId string) ([]*dto.ConversationResponse, error)
	ListCounterparts(ctx context.Context, callerId string, role entity.UserRole) ([]*dto.CounterpartResponse, error)
}

type chatService struct {
	uowFactory       unitofwork.RepositoryFactory
	presence         PresenceLookup
	profiles         *ProfileResolver
	eventPublisher   EventPublisher
	logger           logger.ILogger
	maxContentLength int
	now              func() time.Time
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	presence PresenceLookup,
	profiles *ProfileResolver,
	eventPublisher EventPublisher,
	log logger.ILogger,
	maxContentLength int,
) IChatService {
	return &chatService{
		uowFactory:       uowFactory,
		presence:         presence,
		profiles:         profiles,
		eventPublisher:   eventPublisher,
		logger:           log,
		maxContentLength: maxContentLength,
		now:              time.Now,
	}
}

func (s *chatService) Send(ctx context.Context, senderId, recipientId, content string) (*dto.SendResult, error) {
	ctx, span := otel.Tracer("chat-service").Start(ctx, "MessageDispatcher.Send")
	defer span.End()
	span.SetAttributes(attribute.String("chat.sender_id", senderId), attribute.String("chat.recipient_id", recipientId))

	content = strings.TrimSpace(content)
	switch {
	case !serverutils.IsValidUserID(senderId) || !serverutils.IsValidUserID(recipientId):
		return nil, invalidMessage("malformed participant id")
	case senderId == recipientId:
		return nil, invalidMessage("cannot message yourself")
	case content == "":
		return nil, invalidMessage("content is empty")
	case s.maxContentLength > 0 && utf8.RuneCountInString(content) > s.maxContentLength:
		return nil, invalidMessage("content is too long")
	}

	now := s.now()
	participantA, participantB := s.orientPair(ctx, senderId, recipientId)

	// The conversation and its first message are committed together.
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		span.RecordError(err)
		return nil, persistenceError("open conversation", err)
	}

	conv, created, err := uow.ConversationRepository().FindOrCreate(ctx, participantA, participantB, now)
	if err != nil {
		_ = uow.Rollback()
		span.RecordError(err)
		span.SetStatus(codes.Error, "find or create conversation")
		return nil, persistenceError("open conversation", err)
	}

	msg := &entity.Message{
		Id:             uuid.New(),
		ConversationId: conv.Id,
		SenderId:       senderId,
		RecipientId:    recipientId,
		Content:        content,
		CreatedAt:      now,
	}
	if err := uow.MessageRepository().Append(ctx, msg); err != nil {
		_ = uow.Rollback()
		span.RecordError(err)
		span.SetStatus(codes.Error, "append message")
		return nil, persistenceError("save message", err)
	}

	if err := uow.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit message")
		return nil, persistenceError("save message", err)
	}

	if created {
		s.publish(ctx, events.New(events.TypeConversationStarted, map[string]interface{}{
			"conversation_id": conv.Id.String(),
			"participant_a":   conv.ParticipantA,
			"participant_b":   conv.ParticipantB,
		}, now))
	}

	delivered := s.push(ctx, msg)
	span.SetAttributes(attribute.Bool("chat.delivered", delivered))

	s.publish(ctx, events.New(events.TypeMessageSent, map[string]interface{}{
		"message_id":      msg.Id.String(),
		"conversation_id": conv.Id.String(),
		"sender_id":       senderId,
		"recipient_id":    recipientId,
		"delivered":       delivered,
	}, msg.CreatedAt))

	return &dto.SendResult{
		MessageId:      msg.Id,
		ConversationId: conv.Id,
		CreatedAt:      msg.CreatedAt,
		Delivered:      delivered,
	}, nil
}

// push is best effort. A failed write leaves DeliveredAt empty and is not retried.
func (s *chatService) push(ctx context.Context, msg *entity.Message) bool {
	conn, ok := s.presence.Lookup(msg.RecipientId)
	if !ok {
		return false
	}

	err := conn.Push(dto.WsEnvelope{
		Type: dto.WsEventNewMessage,
		Data: dto.NewMessagePayload{
			Id:             msg.Id,
			ConversationId: msg.ConversationId,
			From:           msg.SenderId,
			To:             msg.RecipientId,
			SenderName:     s.profiles.DisplayName(ctx, msg.SenderId),
			Content:        msg.Content,
			CreatedAt:      msg.CreatedAt,
		},
	})
	if err != nil {
		s.logger.Warn("DISPATCHER", "Push to recipient failed", map[string]interface{}{
			"message_id":   msg.Id,
			"recipient_id": msg.RecipientId,
			"error":        err.Error(),
		})
		return false
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.MessageRepository().MarkDelivered(ctx, msg.Id, s.now()); err != nil {
		s.logger.Error("DISPATCHER", "Failed to record delivery", map[string]interface{}{
			"message_id": msg.Id,
			"error":      err.Error(),
		})
	}
	return true
}

func (s *chatService) HandleSend(ctx context.Context, sender presence.Conn, senderId, recipientId, content string) {
	result, err := s.Send(ctx, senderId, recipientId, content)
	if err != nil {
		reason := "failed to send message"
		var perr *PersistenceError
		switch {
		case errors.Is(err, ErrInvalidMessage):
			reason = err.Error()
			s.logger.Debug("DISPATCHER", "Rejected message", map[string]interface{}{"sender_id": senderId, "reason": reason})
		case errors.As(err, &perr):
			reason = "failed to " + perr.Op + ", please try again"
			s.logger.Error("DISPATCHER", "Persistence failure", map[string]interface{}{"sender_id": senderId, "op": perr.Op, "error": perr.Err.Error()})
		default:
			s.logger.Error("DISPATCHER", "Send failed", map[string]interface{}{"sender_id": senderId, "error": err.Error()})
		}
		s.reply(sender, dto.WsEnvelope{Type: dto.WsEventMessageError, Data: reason})
		return
	}

	s.reply(sender, dto.WsEnvelope{
		Type: dto.WsEventMessageDelivered,
		Data: dto.MessageDeliveredPayload{Id: result.MessageId, CreatedAt: result.CreatedAt},
	})
}

func (s *chatService) reply(conn presence.Conn, env dto.WsEnvelope) {
	if err := conn.Push(env); err != nil {
		s.logger.Warn("DISPATCHER", "Reply to sender failed", map[string]interface{}{"conn_id": conn.ID(), "event": env.Type, "error": err.Error()})
	}
}

func (s *chatService) History(ctx context.Context, callerId string, conversationId uuid.UUID, request dto.HistoryRequest) ([]*dto.MessageResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	conv, err := uow.ConversationRepository().FindById(ctx, conversationId)
	if err != nil {
		return nil, persistenceError("load conversation", err)
	}
	if conv == nil || !conv.HasParticipant(callerId) {
		return nil, ErrConversationNotFound
	}

	messages, err := uow.MessageRepository().ListByConversation(ctx, conv.Id, request.After, request.Limit)
	if err != nil {
		return nil, persistenceError("load messages", err)
	}
	return s.toMessageResponses(ctx, messages), nil
}

// PairHistory returns the pair's full history, then marks what was addressed to the
// caller as delivered. The returned snapshot shows the state before that update.
func (s *chatService) PairHistory(ctx context.Context, callerId, counterpartId string) ([]*dto.MessageResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	conv, err := uow.ConversationRepository().FindByPair(ctx, callerId, counterpartId)
	if err != nil {
		return nil, persistenceError("load conversation", err)
	}
	if conv == nil {
		return []*dto.MessageResponse{}, nil
	}

	messages, err := uow.MessageRepository().ListByConversation(ctx, conv.Id, 0, 0)
	if err != nil {
		return nil, persistenceError("load messages", err)
	}
	response := s.toMessageResponses(ctx, messages)

	n, err := uow.MessageRepository().MarkDeliveredInbound(ctx, conv.Id, callerId, s.now())
	if err != nil {
		s.logger.Error("DISPATCHER", "Failed to mark history delivered", map[string]interface{}{
			"conversation_id": conv.Id,
			"error":           err.Error(),
		})
	} else if n > 0 {
		s.logger.Debug("DISPATCHER", "Marked fetched messages delivered", map[string]interface{}{"conversation_id": conv.Id, "count": n})
	}

	return response, nil
}

func (s *chatService) MarkRead(ctx context.Context, recipientId, senderId string) (int64, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	conv, err := uow.ConversationRepository().FindByPair(ctx, recipientId, senderId)
	if err != nil {
		return 0, persistenceError("load conversation", err)
	}
	if conv == nil {
		return 0, nil
	}

	now := s.now()
	n, err := uow.MessageRepository().MarkRead(ctx, conv.Id, senderId, now)
	if err != nil {
		return 0, persistenceError("mark messages read", err)
	}

	if n > 0 {
		s.publish(ctx, events.New(events.TypeMessagesRead, map[string]interface{}{
			"conversation_id": conv.Id.String(),
			"reader_id":       recipientId,
			"sender_id":       senderId,
			"count":           n,
		}, now))
	}
	return n, nil
}

func (s *chatService) StartConversation(ctx context.Context, callerId, counterpartId string) (*dto.ConversationResponse, error) {
	caller, err := s.profiles.Resolve(ctx, callerId)
	if err != nil {
		return nil, persistenceError("load profile", err)
	}
	counterpart, err := s.profiles.Resolve(ctx, counterpartId)
	if err != nil {
		return nil, persistenceError("load profile", err)
	}
	if caller == nil || counterpart == nil {
		return nil, ErrProfileNotFound
	}
	if caller.Role != entity.UserRoleStudent || counterpart.Role != entity.UserRoleCounselor {
		return nil, ErrPairingNotAllowed
	}

	now := s.now()
	uow := s.uowFactory.NewUnitOfWork(ctx)
	conv, created, err := uow.ConversationRepository().FindOrCreate(ctx, callerId, counterpartId, now)
	if err != nil {
		return nil, persistenceError("open conversation", err)
	}
	if created {
		s.publish(ctx, events.New(events.TypeConversationStarted, map[string]interface{}{
			"conversation_id": conv.Id.String(),
			"participant_a":   conv.ParticipantA,
			"participant_b":   conv.ParticipantB,
		}, now))
	}

	unread, err := uow.MessageRepository().CountUnreadByConversation(ctx, callerId)
	if err != nil {
		return nil, persistenceError("count unread", err)
	}

	return &dto.ConversationResponse{
		Id:              conv.Id,
		ParticipantA:    conv.ParticipantA,
		ParticipantB:    conv.ParticipantB,
		CounterpartId:   counterpartId,
		CounterpartName: counterpart.DisplayName,
		UnreadCount:     unread[conv.Id],
		CreatedAt:       conv.CreatedAt,
		UpdatedAt:       conv.UpdatedAt,
	}, nil
}

func (s *chatService) ListConversations(ctx context.Context, callerId string) ([]*dto.ConversationResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	conversations, err := uow.ConversationRepository().ListForUser(ctx, callerId)
	if err != nil {
		return nil, persistenceError("list conversations", err)
	}
	if len(conversations) == 0 {
		return []*dto.ConversationResponse{}, nil
	}

	counterpartIds := lo.Map(conversations, func(c *entity.Conversation, _ int) string {
		return c.Counterpart(callerId)
	})
	profiles, err := s.profiles.ResolveMany(ctx, counterpartIds)
	if err != nil {
		return nil, persistenceError("load profiles", err)
	}

	unread, err := uow.MessageRepository().CountUnreadByConversation(ctx, callerId)
	if err != nil {
		return nil, persistenceError("count unread", err)
	}

	return lo.Map(conversations, func(c *entity.Conversation, _ int) *dto.ConversationResponse {
		counterpartId := c.Counterpart(callerId)
		name := counterpartId
		if p, ok := profiles[counterpartId]; ok && p.DisplayName != "" {
			name = p.DisplayName
		}
		return &dto.ConversationResponse{
			Id:              c.Id,
			ParticipantA:    c.ParticipantA,
			ParticipantB:    c.ParticipantB,
			CounterpartId:   counterpartId,
			CounterpartName: name,
			UnreadCount:     unread[c.Id],
			CreatedAt:       c.CreatedAt,
			UpdatedAt:       c.UpdatedAt,
		}
	}), nil
}

// ListCounterparts lists users of role, or of the caller's opposite role when role is
// empty. Live registry state overrides the stored presence mirror.
func (s *chatService) ListCounterparts(ctx context.Context, callerId string, role entity.UserRole) ([]*dto.CounterpartResponse, error) {
	if role == "" {
		caller, err := s.profiles.Resolve(ctx, callerId)
		if err != nil {
			return nil, persistenceError("load profile", err)
		}
		if caller == nil {
			return nil, ErrProfileNotFound
		}
		role = caller.Role.Counterpart()
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	users, err := uow.UserRepository().FindByRole(ctx, role)
	if err != nil {
		return nil, persistenceError("list profiles", err)
	}

	result := make([]*dto.CounterpartResponse, 0, len(users))
	for _, u := range users {
		if u.Id == callerId {
			continue
		}
		item := &dto.CounterpartResponse{
			Id:          u.Id,
			DisplayName: u.DisplayName,
			Role:        string(u.Role),
			IsOnline:    s.presence.IsOnline(u.Id),
			LastSeen:    u.LastSeen,
		}
		if seen, ok := s.presence.LastSeen(u.Id); ok && seen.After(item.LastSeen) {
			item.LastSeen = seen
		}
		result = append(result, item)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].IsOnline != result[j].IsOnline {
			return result[i].IsOnline
		}
		return result[i].LastSeen.After(result[j].LastSeen)
	})
	return result, nil
}

// orientPair puts the student first when both roles are known, otherwise the sender.
func (s *chatService) orientPair(ctx context.Context, senderId, recipientId string) (string, string) {
	profiles, err := s.profiles.ResolveMany(ctx, []string{senderId, recipientId})
	if err != nil {
		return senderId, recipientId
	}
	sender, recipient := profiles[senderId], profiles[recipientId]
	if sender != nil && recipient != nil &&
		sender.Role == entity.UserRoleCounselor && recipient.Role == entity.UserRoleStudent {
		return recipientId, senderId
	}
	return senderId, recipientId
}

func (s *chatService) toMessageResponses(ctx context.Context, messages []*entity.Message) []*dto.MessageResponse {
	senderIds := lo.Uniq(lo.Map(messages, func(m *entity.Message, _ int) string { return m.SenderId }))
	profiles, err := s.profiles.ResolveMany(ctx, senderIds)
	if err != nil {
		profiles = map[string]*entity.User{}
	}

	return lo.Map(messages, func(m *entity.Message, _ int) *dto.MessageResponse {
		name := m.SenderId
		if p, ok := profiles[m.SenderId]; ok && p.DisplayName != "" {
			name = p.DisplayName
		}
		return &dto.MessageResponse{
			Id:             m.Id,
			Seq:            m.Seq,
			ConversationId: m.ConversationId,
			SenderId:       m.SenderId,
			SenderName:     name,
			RecipientId:    m.RecipientId,
			Content:        m.Content,
			CreatedAt:      m.CreatedAt,
			DeliveredAt:    m.DeliveredAt,
			ReadAt:         m.ReadAt,
		}
	})
}

func (s *chatService) publish(ctx context.Context, event events.Event) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		s.logger.Warn("DISPATCHER", "Failed to publish event", map[string]interface{}{
			"event": event.EventType(),
			"error": err.Error(),
		})
	}
}
