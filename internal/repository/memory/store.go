package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"counsel-chat-be/internal/entity"
	"counsel-chat-be/internal/repository/contract"
	"counsel-chat-be/internal/repository/unitofwork"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Store is a process-local Conversation Store used when STORE_DRIVER=memory and in tests.
// A single mutex serialises every write, which also serialises appends per conversation.
type Store struct {
	mu            sync.RWMutex
	seq           int64
	users         map[string]*entity.User
	conversations map[uuid.UUID]*entity.Conversation
	pairs         map[string]uuid.UUID
	messages      map[uuid.UUID][]*entity.Message
	messageIndex  map[uuid.UUID]*entity.Message
}

func NewStore() *Store {
	return &Store{
		users:         make(map[string]*entity.User),
		conversations: make(map[uuid.UUID]*entity.Conversation),
		pairs:         make(map[string]uuid.UUID),
		messages:      make(map[uuid.UUID][]*entity.Message),
		messageIndex:  make(map[uuid.UUID]*entity.Message),
	}
}

type repositoryFactory struct {
	store *Store
}

func NewRepositoryFactory(store *Store) unitofwork.RepositoryFactory {
	return &repositoryFactory{store: store}
}

func (f *repositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &unitOfWork{store: f.store}
}

// unitOfWork gives no isolation; each repository call is atomic on its own.
type unitOfWork struct {
	store *Store
}

func (u *unitOfWork) Begin(ctx context.Context) error { return nil }
func (u *unitOfWork) Commit() error                   { return nil }
func (u *unitOfWork) Rollback() error                 { return nil }

func (u *unitOfWork) UserRepository() contract.UserRepository {
	return &userRepository{store: u.store}
}

func (u *unitOfWork) ConversationRepository() contract.ConversationRepository {
	return &conversationRepository{store: u.store}
}

func (u *unitOfWork) MessageRepository() contract.MessageRepository {
	return &messageRepository{store: u.store}
}

func copyUser(u *entity.User) *entity.User {
	c := *u
	return &c
}

func copyConversation(c *entity.Conversation) *entity.Conversation {
	cp := *c
	return &cp
}

func copyMessage(m *entity.Message) *entity.Message {
	c := *m
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		c.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return &c
}

// Users

type userRepository struct {
	store *Store
}

func (r *userRepository) FindById(ctx context.Context, id string) (*entity.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (r *userRepository) FindByIds(ctx context.Context, ids []string) ([]*entity.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*entity.User, 0, len(ids))
	for _, id := range lo.Uniq(ids) {
		if u, ok := r.store.users[id]; ok {
			result = append(result, copyUser(u))
		}
	}
	return result, nil
}

func (r *userRepository) FindByRole(ctx context.Context, role entity.UserRole) ([]*entity.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*entity.User, 0)
	for _, u := range r.store.users {
		if u.Role == role {
			result = append(result, copyUser(u))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].IsOnline != result[j].IsOnline {
			return result[i].IsOnline
		}
		if !result[i].LastSeen.Equal(result[j].LastSeen) {
			return result[i].LastSeen.After(result[j].LastSeen)
		}
		return result[i].Id < result[j].Id
	})
	return result, nil
}

func (r *userRepository) Upsert(ctx context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	if existing, ok := r.store.users[user.Id]; ok {
		existing.DisplayName = user.DisplayName
		existing.Role = user.Role
		existing.UpdatedAt = now
		*user = *copyUser(existing)
		return nil
	}

	stored := copyUser(user)
	if stored.LastSeen.IsZero() {
		stored.LastSeen = now
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.store.users[user.Id] = stored
	*user = *copyUser(stored)
	return nil
}

func (r *userRepository) UpdatePresence(ctx context.Context, id string, online bool, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	u, ok := r.store.users[id]
	if !ok || !u.LastSeen.Before(at) {
		return nil
	}
	u.IsOnline = online
	u.LastSeen = at
	return nil
}

// Conversations

type conversationRepository struct {
	store *Store
}

func (r *conversationRepository) FindOrCreate(ctx context.Context, participantA, participantB string, now time.Time) (*entity.Conversation, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := entity.PairKey(participantA, participantB)
	if id, ok := r.store.pairs[key]; ok {
		return copyConversation(r.store.conversations[id]), false, nil
	}

	conv := &entity.Conversation{
		Id:           uuid.New(),
		ParticipantA: participantA,
		ParticipantB: participantB,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.store.conversations[conv.Id] = conv
	r.store.pairs[key] = conv.Id
	return copyConversation(conv), true, nil
}

func (r *conversationRepository) FindById(ctx context.Context, id uuid.UUID) (*entity.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	conv, ok := r.store.conversations[id]
	if !ok {
		return nil, nil
	}
	return copyConversation(conv), nil
}

func (r *conversationRepository) FindByPair(ctx context.Context, a, b string) (*entity.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.pairs[entity.PairKey(a, b)]
	if !ok {
		return nil, nil
	}
	return copyConversation(r.store.conversations[id]), nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*entity.Conversation, 0)
	for _, conv := range r.store.conversations {
		if conv.HasParticipant(userId) {
			result = append(result, copyConversation(conv))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].Id.String() < result[j].Id.String()
	})
	return result, nil
}

// Messages

type messageRepository struct {
	store *Store
}

func (r *messageRepository) Append(ctx context.Context, msg *entity.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	conv, ok := r.store.conversations[msg.ConversationId]
	if !ok {
		return contract.ErrRecordNotFound
	}

	if msg.Id == uuid.Nil {
		msg.Id = uuid.New()
	}
	if msg.CreatedAt.Before(conv.UpdatedAt) {
		msg.CreatedAt = conv.UpdatedAt
	}
	r.store.seq++
	msg.Seq = r.store.seq

	stored := copyMessage(msg)
	r.store.messages[conv.Id] = append(r.store.messages[conv.Id], stored)
	r.store.messageIndex[stored.Id] = stored
	conv.UpdatedAt = stored.CreatedAt
	return nil
}

func (r *messageRepository) FindById(ctx context.Context, id uuid.UUID) (*entity.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	msg, ok := r.store.messageIndex[id]
	if !ok {
		return nil, nil
	}
	return copyMessage(msg), nil
}

// Appends never move CreatedAt backwards, so the slice is already in (CreatedAt, Seq) order.
func (r *messageRepository) ListByConversation(ctx context.Context, conversationId uuid.UUID, afterSeq int64, limit int) ([]*entity.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*entity.Message, 0)
	for _, msg := range r.store.messages[conversationId] {
		if msg.Seq <= afterSeq {
			continue
		}
		result = append(result, copyMessage(msg))
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (r *messageRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if msg, ok := r.store.messageIndex[id]; ok && msg.DeliveredAt == nil {
		t := at
		msg.DeliveredAt = &t
	}
	return nil
}

func (r *messageRepository) MarkDeliveredInbound(ctx context.Context, conversationId uuid.UUID, recipientId string, at time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for _, msg := range r.store.messages[conversationId] {
		if msg.RecipientId == recipientId && msg.DeliveredAt == nil {
			t := at
			msg.DeliveredAt = &t
			n++
		}
	}
	return n, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, conversationId uuid.UUID, senderId string, at time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for _, msg := range r.store.messages[conversationId] {
		if msg.SenderId != senderId || msg.ReadAt != nil {
			continue
		}
		t := at
		msg.ReadAt = &t
		if msg.DeliveredAt == nil {
			d := at
			msg.DeliveredAt = &d
		}
		n++
	}
	return n, nil
}

func (r *messageRepository) CountUnreadByConversation(ctx context.Context, recipientId string) (map[uuid.UUID]int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	counts := make(map[uuid.UUID]int64)
	for convId, msgs := range r.store.messages {
		for _, msg := range msgs {
			if msg.RecipientId == recipientId && msg.ReadAt == nil {
				counts[convId]++
			}
		}
	}
	return counts, nil
}
