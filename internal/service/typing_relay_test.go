package service

import (
	"testing"

	"counsel-chat-be/internal/dto"
	"counsel-chat-be/internal/pkg/logger"

	"github.com/stretchr/testify/require"
)

func TestTypingRelay_Forwards_To_Online_Recipient(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	recipient := f.join("c1")
	relay := NewTypingRelay(f.registry, logger.NewNopLogger())

	req.True(relay.SetTyping("s1", "c1", true))
	req.True(relay.SetTyping("s1", "c1", false))

	frames := recipient.framesOf(dto.WsEventUserTyping)
	req.Len(frames, 2)
	req.Equal(dto.UserTypingPayload{From: "s1", IsTyping: true}, frames[0].Data)
	req.Equal(dto.UserTypingPayload{From: "s1", IsTyping: false}, frames[1].Data)
}

func TestTypingRelay_Drops_When_Offline(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	bystander := f.join("c2")
	relay := NewTypingRelay(f.registry, logger.NewNopLogger())

	req.False(relay.SetTyping("s1", "c1", true))
	req.Empty(bystander.framesOf(dto.WsEventUserTyping))
}

func TestTypingRelay_Never_Touches_The_Store(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	f.join("c1")
	relay := NewTypingRelay(f.registry, logger.NewNopLogger())

	for i := 0; i < 1000; i++ {
		relay.SetTyping("s1", "c1", i%2 == 0)
	}

	uow := f.factory.NewUnitOfWork(f.ctx)
	conversations, err := uow.ConversationRepository().ListForUser(f.ctx, "s1")
	req.NoError(err)
	req.Empty(conversations)

	unread, err := uow.MessageRepository().CountUnreadByConversation(f.ctx, "c1")
	req.NoError(err)
	req.Empty(unread)
}
