package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"counsel-chat-be/internal/dto"
	"counsel-chat-be/internal/pkg/logger"
	"counsel-chat-be/internal/presence"
	"counsel-chat-be/internal/repository/memory"
	"counsel-chat-be/internal/repository/unitofwork"
	"counsel-chat-be/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames []dto.WsEnvelope
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Push(env dto.WsEnvelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) framesOf(eventType string) []dto.WsEnvelope {
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

type harness struct {
	ctx      context.Context
	registry *presence.Registry
	chat     service.IChatService
	factory  unitofwork.RepositoryFactory
	gateway  *Gateway
}

func newHarness() *harness {
	ctx := context.Background()
	factory := memory.NewRepositoryFactory(memory.NewStore())
	registry := presence.NewRegistry(logger.NewNopLogger())
	profiles := service.NewProfileResolver(factory, time.Minute)
	chat := service.NewChatService(factory, registry, profiles, nil, logger.NewNopLogger(), 4000)
	typing := service.NewTypingRelay(registry, logger.NewNopLogger())

	return &harness{
		ctx:      ctx,
		registry: registry,
		chat:     chat,
		factory:  factory,
		gateway:  NewGateway(registry, chat, typing, ClientConfig{}, logger.NewNopLogger()),
	}
}

// connect opens an authenticated session for subject.
func (h *harness) connect(t *testing.T, subject string) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{id: "conn-" + subject}
	session := h.gateway.NewSession(conn)
	require.NoError(t, session.Authenticate(subject))
	return session, conn
}

func frame(t *testing.T, eventType string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"type": eventType, "data": data})
	require.NoError(t, err)
	return raw
}

func TestSession_State_Machine(t *testing.T) {
	req := require.New(t)
	h := newHarness()
	conn := &fakeConn{id: "c"}
	session := h.gateway.NewSession(conn)

	req.Equal(StateConnecting, session.State())

	// Nothing is honoured before authentication
	session.Handle(h.ctx, frame(t, dto.WsEventJoin, "u1"))
	req.Equal(StateConnecting, session.State())
	req.False(h.registry.IsOnline("u1"))

	req.ErrorIs(session.Authenticate("not valid!"), ErrInvalidSubject)
	req.NoError(session.Authenticate("u1"))
	req.Equal(StateAuthenticated, session.State())

	session.Handle(h.ctx, frame(t, dto.WsEventJoin, "u1"))
	req.Equal(StateJoined, session.State())
	req.Equal("u1", session.UserID())
	req.True(h.registry.IsOnline("u1"))

	session.Close()
	req.Equal(StateClosed, session.State())
	req.False(h.registry.IsOnline("u1"))

	// Events after close are no-ops
	session.Handle(h.ctx, frame(t, dto.WsEventJoin, "u1"))
	req.False(h.registry.IsOnline("u1"))
	session.Close()
}

func TestSession_Join_Rules(t *testing.T) {
	tests := []struct {
		name   string
		data   interface{}
		joined bool
	}{
		{name: "bare id", data: "u1", joined: true},
		{name: "object payload", data: map[string]string{"userId": "u1"}, joined: true},
		{name: "other identity", data: "u2", joined: false},
		{name: "empty id", data: "", joined: false},
		{name: "malformed id", data: "u 1", joined: false},
		{name: "wrong shape", data: 42, joined: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			session, _ := h.connect(t, "u1")

			session.Handle(h.ctx, frame(t, dto.WsEventJoin, tt.data))

			assert.Equal(t, tt.joined, session.State() == StateJoined)
			assert.Equal(t, tt.joined, h.registry.IsOnline("u1"))
			assert.False(t, h.registry.IsOnline("u2"))
		})
	}
}

func TestSession_Ignores_Events_Before_Join(t *testing.T) {
	req := require.New(t)
	h := newHarness()
	session, conn := h.connect(t, "u1")
	peerSession, peerConn := h.connect(t, "u2")
	peerSession.Handle(h.ctx, frame(t, dto.WsEventJoin, "u2"))

	session.Handle(h.ctx, frame(t, dto.WsEventSendMessage, map[string]string{"from": "u1", "to": "u2", "content": "hi"}))
	session.Handle(h.ctx, frame(t, dto.WsEventTyping, map[string]interface{}{"from": "u1", "to": "u2", "isTyping": true}))

	req.Empty(conn.frames)
	req.Empty(peerConn.framesOf(dto.WsEventNewMessage))
	req.Empty(peerConn.framesOf(dto.WsEventUserTyping))
}

func TestGateway_Scenario_Online_Delivery(t *testing.T) {
	req := require.New(t)
	h := newHarness()
	s1, c1 := h.connect(t, "u1")
	s2, c2 := h.connect(t, "u2")

	s1.Handle(h.ctx, frame(t, dto.WsEventJoin, "u1"))
	s2.Handle(h.ctx, frame(t, dto.WsEventJoin, "u2"))

	online := c1.framesOf(dto.WsEventUserOnline)
	req.Len(online, 1)
	req.Equal("u2", online[0].Data)

	s1.Handle(h.ctx, frame(t, dto.WsEventSendMessage, map[string]string{"from": "u1", "to": "u2", "content": "Hello"}))

	received := c2.framesOf(dto.WsEventNewMessage)
	req.Len(received, 1)
	msg := received[0].Data.(dto.NewMessagePayload)
	req.Equal("Hello", msg.Content)
	req.Equal("u1", msg.From)

	acks := c1.framesOf(dto.WsEventMessageDelivered)
	req.Len(acks, 1)
	req.Equal(msg.Id, acks[0].Data.(dto.MessageDeliveredPayload).Id)
}

func TestGateway_Scenario_Offline_Recipient(t *testing.T) {
	req := require.New(t)
	h := newHarness()
	s1, c1 := h.connect(t, "u1")
	s1.Handle(h.ctx, frame(t, dto.WsEventJoin, "u1"))

	s1.Handle(h.ctx, frame(t, dto.WsEventSendMessage, map[string]string{"from": "u1", "to": "u3", "content": "ping"}))
	req.Len(c1.framesOf(dto.WsEventMessageDelivered), 1)

	// u3 joins later and fetches the pair history
	s3, c3 := h.connect(t, "u3")
	s3.Handle(h.ctx, frame(t, dto.WsEventJoin, "u3"))
	req.Empty(c3.framesOf(dto.WsEventNewMessage))

	history, err := h.chat.PairHistory(h.ctx, "u3", "u1")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("ping", history[0].Content)
	req.Nil(history[0].DeliveredAt)
}

func TestGateway_Scenario_Disconnect_Broadcast(t *testing.T) {
	req := require.New(t)
	h := newHarness()
	s1, _ := h.connect(t, "u1")
	s2, c2 := h.connect(t, "u2")
	s3, c3 := h.connect(t, "u3")
	for _, s := range []*Session{s1, s2, s3} {
		s.Handle(h.ctx, frame(t, dto.WsEventJoin, s.subject))
	}

	s1.Close()
	s1.Close()

	for _, c := range []*fakeConn{c2, c3} {
		offline := c.framesOf(dto.WsEventUserOffline)
		req.Len(offline, 1)
		req.Equal("u1", offline[0].Data)
	}
}

func TestGateway_Second_Join_Replaces_First(t *testing.T) {
	req := require.New(t)
	h := newHarness()
	watcherSession, watcher := h.connect(t, "w")
	watcherSession.Handle(h.ctx, frame(t, dto.WsEventJoin, "w"))

	first, firstConn := h.connect(t, "u1")
	first.Handle(h.ctx, frame(t, dto.WsEventJoin, "u1"))
	second, secondConn := h.connect(t, "u1")
	second.Handle(h.ctx, frame(t, dto.WsEventJoin, "u1"))

	req.True(firstConn.isClosed())
	current, _ := h.registry.Lookup("u1")
	req.Equal(secondConn, current)

	// The replaced session can no longer send as u1
	first.Handle(h.ctx, frame(t, dto.WsEventSendMessage, map[string]string{"from": "u1", "to": "w", "content": "stale"}))
	req.Empty(watcher.framesOf(dto.WsEventNewMessage))

	// Its late close does not take the user offline
	first.Close()
	req.True(h.registry.IsOnline("u1"))
	req.Empty(watcher.framesOf(dto.WsEventUserOffline))

	second.Close()
	req.False(h.registry.IsOnline("u1"))
	req.Len(watcher.framesOf(dto.WsEventUserOffline), 1)
}

func TestGateway_Rejects_Spoofed_Sender(t *testing.T) {
	req := require.New(t)
	h := newHarness()
	s1, c1 := h.connect(t, "u1")
	s2, c2 := h.connect(t, "u2")
	s1.Handle(h.ctx, frame(t, dto.WsEventJoin, "u1"))
	s2.Handle(h.ctx, frame(t, dto.WsEventJoin, "u2"))

	s1.Handle(h.ctx, frame(t, dto.WsEventSendMessage, map[string]string{"from": "u2", "to": "u1", "content": "spoof"}))
	s1.Handle(h.ctx, frame(t, dto.WsEventTyping, map[string]interface{}{"from": "u2", "to": "u2", "isTyping": true}))

	errs := c1.framesOf(dto.WsEventMessageError)
	req.Len(errs, 1)
	req.Equal("sender does not match session", errs[0].Data)
	req.Empty(c1.framesOf(dto.WsEventNewMessage))
	req.Empty(c2.framesOf(dto.WsEventUserTyping))
}

func TestGateway_Invalid_Send_Reports_Error_And_Keeps_Session(t *testing.T) {
	req := require.New(t)
	h := newHarness()
	s1, c1 := h.connect(t, "u1")
	s2, c2 := h.connect(t, "u2")
	s1.Handle(h.ctx, frame(t, dto.WsEventJoin, "u1"))
	s2.Handle(h.ctx, frame(t, dto.WsEventJoin, "u2"))

	s1.Handle(h.ctx, frame(t, dto.WsEventSendMessage, map[string]string{"from": "u1", "to": "u2", "content": "   "}))
	s1.Handle(h.ctx, []byte(`{"type":"sendMessage","data":"nope"}`))
	s1.Handle(h.ctx, []byte(`not json`))
	s1.Handle(h.ctx, frame(t, "unknownEvent", nil))

	req.Len(c1.framesOf(dto.WsEventMessageError), 2)
	req.Equal(StateJoined, s1.State())

	s1.Handle(h.ctx, frame(t, dto.WsEventSendMessage, map[string]string{"from": "u1", "to": "u2", "content": "still here"}))
	req.Len(c2.framesOf(dto.WsEventNewMessage), 1)
}

func TestGateway_Typing_Relay(t *testing.T) {
	req := require.New(t)
	h := newHarness()
	s1, _ := h.connect(t, "u1")
	s2, c2 := h.connect(t, "u2")
	s3, c3 := h.connect(t, "u3")
	s1.Handle(h.ctx, frame(t, dto.WsEventJoin, "u1"))
	s2.Handle(h.ctx, frame(t, dto.WsEventJoin, "u2"))
	s3.Handle(h.ctx, frame(t, dto.WsEventJoin, "u3"))

	s1.Handle(h.ctx, frame(t, dto.WsEventTyping, map[string]interface{}{"from": "u1", "to": "u2", "isTyping": true}))

	typing := c2.framesOf(dto.WsEventUserTyping)
	req.Len(typing, 1)
	req.Equal(dto.UserTypingPayload{From: "u1", IsTyping: true}, typing[0].Data)
	req.Empty(c3.framesOf(dto.WsEventUserTyping))

	// Typing to an offline user is dropped and nothing is stored
	s1.Handle(h.ctx, frame(t, dto.WsEventTyping, map[string]interface{}{"from": "u1", "to": "u9", "isTyping": true}))
	list, err := h.factory.NewUnitOfWork(h.ctx).ConversationRepository().ListForUser(h.ctx, "u1")
	req.NoError(err)
	req.Empty(list)
}
