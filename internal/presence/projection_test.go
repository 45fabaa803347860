package presence

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"counsel-chat-be/internal/entity"
	"counsel-chat-be/internal/pkg/logger"
	"counsel-chat-be/internal/repository/memory"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	changes []Change
}

func (s *recordingSink) Apply(ctx context.Context, change Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, change)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.changes)
}

func TestProjection_Mirrors_Registry_Into_Store(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	store := memory.NewStore()
	factory := memory.NewRepositoryFactory(store)
	users := factory.NewUnitOfWork(ctx).UserRepository()
	req.NoError(users.Upsert(ctx, &entity.User{
		Id:          "c1",
		DisplayName: "Counselor",
		Role:        entity.UserRoleCounselor,
		LastSeen:    time.Now().Add(-time.Hour),
	}))

	recorder := &recordingSink{}
	worker := NewProjectionWorker(pubSub, logger.NewNopLogger(), NewStoreSink(factory), recorder)
	req.NoError(worker.Run(ctx))

	registry := NewRegistry(logger.NewNopLogger())
	registry.AddListener(NewProjectionPublisher(pubSub, logger.NewNopLogger()))

	conn := newFakeConn("h1")
	registry.Register("c1", conn)

	req.Eventually(func() bool {
		u, err := users.FindById(ctx, "c1")
		return err == nil && u.IsOnline
	}, time.Second, 10*time.Millisecond)

	registry.Deregister("c1", conn)

	req.Eventually(func() bool {
		u, err := users.FindById(ctx, "c1")
		return err == nil && !u.IsOnline && recorder.count() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestRedisMirror_Apply(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping integration test: REDIS_URL not set")
	}
	req := require.New(t)
	ctx := context.Background()

	opts, err := redis.ParseURL(url)
	req.NoError(err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	mirror := NewRedisMirror(rdb)
	userID := "mirror-test-" + watermill.NewUUID()
	defer rdb.HDel(ctx, redisLastSeenKey, userID)

	now := time.Now().Truncate(time.Microsecond)
	req.NoError(mirror.Apply(ctx, Change{UserID: userID, Online: true, At: now}))
	online, err := mirror.IsOnline(ctx, userID)
	req.NoError(err)
	req.True(online)

	// An older offline change arriving late is ignored.
	req.NoError(mirror.Apply(ctx, Change{UserID: userID, Online: false, At: now.Add(-time.Second)}))
	online, err = mirror.IsOnline(ctx, userID)
	req.NoError(err)
	req.True(online)

	// So is one carrying the same stamp.
	req.NoError(mirror.Apply(ctx, Change{UserID: userID, Online: false, At: now}))
	online, err = mirror.IsOnline(ctx, userID)
	req.NoError(err)
	req.True(online)

	req.NoError(mirror.Apply(ctx, Change{UserID: userID, Online: false, At: now.Add(time.Microsecond)}))
	online, err = mirror.IsOnline(ctx, userID)
	req.NoError(err)
	req.False(online)

	lastSeen, err := mirror.LastSeen(ctx, userID)
	req.NoError(err)
	req.True(now.Add(time.Microsecond).Equal(lastSeen))
}
