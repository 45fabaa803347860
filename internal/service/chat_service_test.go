package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"counsel-chat-be/internal/dto"
	"counsel-chat-be/internal/entity"
	"counsel-chat-be/internal/pkg/logger"
	"counsel-chat-be/internal/presence"
	"counsel-chat-be/internal/repository/contract"
	"counsel-chat-be/internal/repository/memory"
	"counsel-chat-be/internal/repository/unitofwork"
	"counsel-chat-be/internal/service/mocks"
	"counsel-chat-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testConn struct {
	id     string
	mu     sync.Mutex
	frames []dto.WsEnvelope
	fail   bool
}

func (c *testConn) ID() string { return c.id }

func (c *testConn) Push(env dto.WsEnvelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("socket closed")
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *testConn) Close() {}

func (c *testConn) framesOf(eventType string) []dto.WsEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []dto.WsEnvelope
	for _, f := range c.frames {
		if f.Type == eventType {
			out = append(out, f)
		}
	}
	return out
}

type failingFactory struct {
	unitofwork.RepositoryFactory
}

func (f failingFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return failingUnitOfWork{f.RepositoryFactory.NewUnitOfWork(ctx)}
}

type failingUnitOfWork struct {
	unitofwork.UnitOfWork
}

func (u failingUnitOfWork) MessageRepository() contract.MessageRepository {
	return failingMessages{u.UnitOfWork.MessageRepository()}
}

type failingMessages struct {
	contract.MessageRepository
}

func (failingMessages) Append(ctx context.Context, msg *entity.Message) error {
	return errors.New("connection refused")
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	factory  unitofwork.RepositoryFactory
	registry *presence.Registry
	profiles *ProfileResolver
	svc      *chatService
}

func newFixture(t *testing.T, publisher EventPublisher) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	factory := memory.NewRepositoryFactory(store)

	users := factory.NewUnitOfWork(ctx).UserRepository()
	seed := []*entity.User{
		{Id: "s1", DisplayName: "Sam Student", Role: entity.UserRoleStudent},
		{Id: "s2", DisplayName: "Sara Student", Role: entity.UserRoleStudent},
		{Id: "c1", DisplayName: "Dr. Chen", Role: entity.UserRoleCounselor},
		{Id: "c2", DisplayName: "Dr. Cruz", Role: entity.UserRoleCounselor},
	}
	for _, u := range seed {
		require.NoError(t, users.Upsert(ctx, u))
	}

	registry := presence.NewRegistry(logger.NewNopLogger())
	profiles := NewProfileResolver(factory, time.Minute)
	svc := NewChatService(factory, registry, profiles, publisher, logger.NewNopLogger(), 4000).(*chatService)

	return &fixture{
		ctx:      ctx,
		store:    store,
		factory:  factory,
		registry: registry,
		profiles: profiles,
		svc:      svc,
	}
}

func (f *fixture) join(userID string) *testConn {
	conn := &testConn{id: "conn-" + userID}
	f.registry.Register(userID, conn)
	return conn
}

func TestChatService_Send_To_Online_Recipient(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockEventPublisher(ctrl)

	var published []string
	publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, e events.Event) error {
			published = append(published, e.EventType())
			return nil
		}).
		Times(2)

	f := newFixture(t, publisher)
	recipient := f.join("c1")
	before := time.Now()

	result, err := f.svc.Send(f.ctx, "s1", "c1", "  Hello  ")

	req.NoError(err)
	req.True(result.Delivered)
	req.False(result.CreatedAt.Before(before))
	req.Equal([]string{events.TypeConversationStarted, events.TypeMessageSent}, published)

	pushed := recipient.framesOf(dto.WsEventNewMessage)
	req.Len(pushed, 1)
	payload := pushed[0].Data.(dto.NewMessagePayload)
	req.Equal(result.MessageId, payload.Id)
	req.Equal("Hello", payload.Content)
	req.Equal("s1", payload.From)
	req.Equal("c1", payload.To)
	req.Equal("Sam Student", payload.SenderName)

	stored, err := f.factory.NewUnitOfWork(f.ctx).MessageRepository().FindById(f.ctx, result.MessageId)
	req.NoError(err)
	req.Equal(payload.Content, stored.Content)
	req.NotNil(stored.DeliveredAt)
	req.Nil(stored.ReadAt)
}

func TestChatService_Send_To_Offline_Recipient(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)

	result, err := f.svc.Send(f.ctx, "u1", "u3", "are you there?")
	req.NoError(err)
	req.False(result.Delivered)

	// u3 comes back later and reads the pair history
	history, err := f.svc.PairHistory(f.ctx, "u3", "u1")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(result.MessageId, history[0].Id)
	req.Equal("are you there?", history[0].Content)
	req.Nil(history[0].DeliveredAt)

	// the fetch itself counts as delivery
	again, err := f.svc.PairHistory(f.ctx, "u3", "u1")
	req.NoError(err)
	req.NotNil(again[0].DeliveredAt)
}

func TestChatService_Send_Rejects_Invalid_Messages(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockEventPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	f := newFixture(t, publisher)
	recipient := f.join("c1")

	tests := []struct {
		name      string
		sender    string
		recipient string
		content   string
	}{
		{name: "empty content", sender: "s1", recipient: "c1", content: ""},
		{name: "whitespace content", sender: "s1", recipient: "c1", content: " \n\t "},
		{name: "message to self", sender: "s1", recipient: "s1", content: "hi"},
		{name: "malformed sender", sender: "", recipient: "c1", content: "hi"},
		{name: "malformed recipient", sender: "s1", recipient: "c 1", content: "hi"},
		{name: "content too long", sender: "s1", recipient: "c1", content: strings.Repeat("a", 4001)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.svc.Send(f.ctx, tt.sender, tt.recipient, tt.content)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}

	list, err := f.factory.NewUnitOfWork(f.ctx).ConversationRepository().ListForUser(f.ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, recipient.framesOf(dto.WsEventNewMessage))
}

func TestChatService_Sequential_Sends_Keep_Order(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)

	// A frozen clock forces every createdAt to tie.
	frozen := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return frozen }

	var conversationId uuid.UUID
	for i := 0; i < 20; i++ {
		result, err := f.svc.Send(f.ctx, "s1", "c1", fmt.Sprintf("message %d", i))
		req.NoError(err)
		conversationId = result.ConversationId
	}

	history, err := f.svc.History(f.ctx, "c1", conversationId, dto.HistoryRequest{})
	req.NoError(err)
	req.Len(history, 20)
	for i, m := range history {
		req.Equal(fmt.Sprintf("message %d", i), m.Content)
		if i > 0 {
			req.Greater(m.Seq, history[i-1].Seq)
		}
	}

	page, err := f.svc.History(f.ctx, "s1", conversationId, dto.HistoryRequest{After: history[9].Seq, Limit: 5})
	req.NoError(err)
	req.Len(page, 5)
	req.Equal("message 10", page[0].Content)
}

func TestChatService_History_Requires_Participant(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)

	result, err := f.svc.Send(f.ctx, "s1", "c1", "private")
	req.NoError(err)

	_, err = f.svc.History(f.ctx, "s2", result.ConversationId, dto.HistoryRequest{})
	req.ErrorIs(err, ErrConversationNotFound)

	_, err = f.svc.History(f.ctx, "s1", uuid.New(), dto.HistoryRequest{})
	req.ErrorIs(err, ErrConversationNotFound)
}

func TestChatService_Conversation_Orientation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)

	// The counselor writes first, the student is still participant A.
	_, err := f.svc.Send(f.ctx, "c1", "s1", "checking in")
	req.NoError(err)

	conv, err := f.factory.NewUnitOfWork(f.ctx).ConversationRepository().FindByPair(f.ctx, "s1", "c1")
	req.NoError(err)
	req.Equal("s1", conv.ParticipantA)
	req.Equal("c1", conv.ParticipantB)

	// Replies reuse the same conversation
	result, err := f.svc.Send(f.ctx, "s1", "c1", "thanks")
	req.NoError(err)
	req.Equal(conv.Id, result.ConversationId)
}

func TestChatService_HandleSend(t *testing.T) {
	t.Run("acks the sender", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		sender := f.join("u1")
		recipient := f.join("u2")

		f.svc.HandleSend(f.ctx, sender, "u1", "u2", "Hello")

		received := recipient.framesOf(dto.WsEventNewMessage)
		req.Len(received, 1)
		req.Equal("Hello", received[0].Data.(dto.NewMessagePayload).Content)

		acks := sender.framesOf(dto.WsEventMessageDelivered)
		req.Len(acks, 1)
		ack := acks[0].Data.(dto.MessageDeliveredPayload)
		req.Equal(received[0].Data.(dto.NewMessagePayload).Id, ack.Id)
		req.Empty(sender.framesOf(dto.WsEventMessageError))
	})

	t.Run("reports invalid messages", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		sender := f.join("u1")

		f.svc.HandleSend(f.ctx, sender, "u1", "u2", "   ")

		errs := sender.framesOf(dto.WsEventMessageError)
		req.Len(errs, 1)
		req.Contains(errs[0].Data.(string), "content is empty")
		req.Empty(sender.framesOf(dto.WsEventMessageDelivered))
	})

	t.Run("reports persistence failures without pushing", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		svc := NewChatService(failingFactory{f.factory}, f.registry, f.profiles, nil, logger.NewNopLogger(), 0)
		sender := f.join("u1")
		recipient := f.join("u2")

		_, err := svc.Send(f.ctx, "u1", "u2", "Hello")
		var perr *PersistenceError
		req.ErrorAs(err, &perr)
		req.Equal("save message", perr.Op)

		svc.HandleSend(f.ctx, sender, "u1", "u2", "Hello")

		errs := sender.framesOf(dto.WsEventMessageError)
		req.Len(errs, 1)
		req.Equal("failed to save message, please try again", errs[0].Data)
		req.Empty(recipient.framesOf(dto.WsEventNewMessage))
	})
}

func TestChatService_Failed_Push_Leaves_Message_Undelivered(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	recipient := f.join("c1")
	recipient.fail = true

	result, err := f.svc.Send(f.ctx, "s1", "c1", "Hello")
	req.NoError(err)
	req.False(result.Delivered)

	stored, err := f.factory.NewUnitOfWork(f.ctx).MessageRepository().FindById(f.ctx, result.MessageId)
	req.NoError(err)
	req.Nil(stored.DeliveredAt)
}

func TestChatService_Publish_Failure_Does_Not_Fail_Send(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockEventPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("nats down")).AnyTimes()

	f := newFixture(t, publisher)

	result, err := f.svc.Send(f.ctx, "s1", "c1", "Hello")
	req.NoError(err)
	req.NotEqual(uuid.Nil, result.MessageId)
}

func TestChatService_MarkRead(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockEventPublisher(ctrl)

	readEvents := 0
	publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, e events.Event) error {
			if e.EventType() == events.TypeMessagesRead {
				readEvents++
				req.Equal(int64(2), e.Payload()["count"])
			}
			return nil
		}).
		AnyTimes()

	f := newFixture(t, publisher)

	_, err := f.svc.Send(f.ctx, "s1", "c1", "one")
	req.NoError(err)
	_, err = f.svc.Send(f.ctx, "s1", "c1", "two")
	req.NoError(err)
	reply, err := f.svc.Send(f.ctx, "c1", "s1", "hello back")
	req.NoError(err)

	n, err := f.svc.MarkRead(f.ctx, "c1", "s1")
	req.NoError(err)
	req.Equal(int64(2), n)

	n, err = f.svc.MarkRead(f.ctx, "c1", "s1")
	req.NoError(err)
	req.Zero(n)
	req.Equal(1, readEvents)

	history, err := f.svc.History(f.ctx, "s1", reply.ConversationId, dto.HistoryRequest{})
	req.NoError(err)
	for _, m := range history {
		if m.SenderId == "s1" {
			req.NotNil(m.ReadAt)
			req.NotNil(m.DeliveredAt)
		} else {
			req.Nil(m.ReadAt)
		}
	}

	// No conversation yet is not an error
	n, err = f.svc.MarkRead(f.ctx, "c2", "s2")
	req.NoError(err)
	req.Zero(n)
}

func TestChatService_StartConversation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)

	first, err := f.svc.StartConversation(f.ctx, "s1", "c1")
	req.NoError(err)
	req.Equal("c1", first.CounterpartId)
	req.Equal("Dr. Chen", first.CounterpartName)
	req.Equal("s1", first.ParticipantA)

	second, err := f.svc.StartConversation(f.ctx, "s1", "c1")
	req.NoError(err)
	req.Equal(first.Id, second.Id)

	_, err = f.svc.StartConversation(f.ctx, "c1", "s1")
	req.ErrorIs(err, ErrPairingNotAllowed)

	_, err = f.svc.StartConversation(f.ctx, "s1", "s2")
	req.ErrorIs(err, ErrPairingNotAllowed)

	_, err = f.svc.StartConversation(f.ctx, "s1", "ghost")
	req.ErrorIs(err, ErrProfileNotFound)
}

func TestChatService_ListConversations(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)

	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	_, err := f.svc.Send(f.ctx, "c1", "s1", "from chen")
	req.NoError(err)
	_, err = f.svc.Send(f.ctx, "c2", "s1", "from cruz")
	req.NoError(err)
	_, err = f.svc.Send(f.ctx, "c2", "s1", "again from cruz")
	req.NoError(err)

	list, err := f.svc.ListConversations(f.ctx, "s1")
	req.NoError(err)
	req.Len(list, 2)
	req.Equal("c2", list[0].CounterpartId)
	req.Equal("Dr. Cruz", list[0].CounterpartName)
	req.Equal(int64(2), list[0].UnreadCount)
	req.Equal("c1", list[1].CounterpartId)
	req.Equal(int64(1), list[1].UnreadCount)

	// Activity in the older conversation moves it to the top
	_, err = f.svc.Send(f.ctx, "s1", "c1", "reply")
	req.NoError(err)
	list, err = f.svc.ListConversations(f.ctx, "s1")
	req.NoError(err)
	req.Equal("c1", list[0].CounterpartId)

	empty, err := f.svc.ListConversations(f.ctx, "s2")
	req.NoError(err)
	req.Empty(empty)
}

func TestChatService_ListCounterparts(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	f.join("c2")

	list, err := f.svc.ListCounterparts(f.ctx, "s1", "")
	req.NoError(err)
	req.Len(list, 2)
	req.Equal("c2", list[0].Id)
	req.True(list[0].IsOnline)
	req.Equal("c1", list[1].Id)
	req.False(list[1].IsOnline)

	students, err := f.svc.ListCounterparts(f.ctx, "s1", entity.UserRoleStudent)
	req.NoError(err)
	req.Len(students, 1)
	req.Equal("s2", students[0].Id)

	_, err = f.svc.ListCounterparts(f.ctx, "ghost", "")
	req.ErrorIs(err, ErrProfileNotFound)
}
