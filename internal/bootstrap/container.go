package bootstrap

import (
	"context"
	"log"

	"counsel-chat-be/internal/config"
	"counsel-chat-be/internal/controller"
	"counsel-chat-be/internal/handler"
	"counsel-chat-be/internal/pkg/logger"
	"counsel-chat-be/internal/presence"
	"counsel-chat-be/internal/repository/memory"
	"counsel-chat-be/internal/repository/unitofwork"
	"counsel-chat-be/internal/service"
	"counsel-chat-be/internal/websocket"
	"counsel-chat-be/pkg/events"

	pktNats "counsel-chat-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const profileSyncDurable = "counsel-chat-profile-sync"

type Container struct {
	// Controllers
	ChatController controller.IChatController

	// WebSockets & Presence
	WsHandler *handler.WsHandler
	Registry  *presence.Registry

	// Background workers (started by Start)
	ProjectionWorker *presence.ProjectionWorker
	ProfileSync      *service.ProfileSyncService

	Logger logger.ILogger

	pubSub    *gochannel.GoChannel
	natsPub   *pktNats.Publisher
	natsSub   *pktNats.Subscriber
	rdb       *redis.Client
	sysLogger *logger.ZapLogger
	wsLogger  *logger.ZapLogger
}

// NewContainer wires the service. db may be nil when cfg selects the memory store.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	wsLogger := logger.NewIsolatedLogger(cfg.App.WsLogFilePath)

	var uowFactory unitofwork.RepositoryFactory
	if cfg.Database.Driver == config.StoreDriverMemory || db == nil {
		sysLogger.Warn("BOOTSTRAP", "Using in-memory conversation store, data is lost on restart", nil)
		uowFactory = memory.NewRepositoryFactory(memory.NewStore())
	} else {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 1024},
		watermillLogger,
	)

	// 3. Infrastructure
	// NATS (optional)
	var natsPub *pktNats.Publisher
	var natsSub *pktNats.Subscriber
	if cfg.App.NatsURL != "" {
		var err error
		natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		}
		natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		}
	}

	// Redis (optional)
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.App.RedisURL,
			}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v (presence mirror disabled)", err)
			_ = rdb.Close()
			rdb = nil
		}
	}

	// 4. Presence
	registry := presence.NewRegistry(wsLogger)
	registry.AddListener(presence.NewProjectionPublisher(pubSub, wsLogger))

	sinks := []presence.Sink{presence.NewStoreSink(uowFactory)}
	if rdb != nil {
		mirror := presence.NewRedisMirror(rdb)
		// Nobody is connected to a process that just started.
		if err := mirror.Reset(context.Background()); err != nil {
			log.Printf("[WARN] Failed to reset presence mirror: %v", err)
		}
		sinks = append(sinks, mirror)
	}
	projectionWorker := presence.NewProjectionWorker(pubSub, wsLogger, sinks...)

	// 5. Services
	profiles := service.NewProfileResolver(uowFactory, cfg.Realtime.ProfileCacheTTL)

	// A typed nil *Publisher would not compare equal to nil inside the service.
	var eventPublisher service.EventPublisher
	if natsPub != nil {
		eventPublisher = natsPub
	}

	chatService := service.NewChatService(
		uowFactory,
		registry,
		profiles,
		eventPublisher,
		wsLogger,
		cfg.Realtime.MaxContentLength,
	)
	typingRelay := service.NewTypingRelay(registry, wsLogger)
	profileSync := service.NewProfileSyncService(uowFactory, profiles, sysLogger)

	// 6. Gateway
	gateway := websocket.NewGateway(registry, chatService, typingRelay, websocket.ClientConfig{
		SendBufferSize: cfg.Realtime.SendBufferSize,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		PongWait:       cfg.Realtime.PongWait,
		WriteWait:      cfg.Realtime.WriteWait,
	}, wsLogger)

	return &Container{
		ChatController:   controller.NewChatController(chatService, cfg.Auth.JwtSecret),
		WsHandler:        handler.NewWsHandler(gateway, cfg.Auth.JwtSecret, wsLogger),
		Registry:         registry,
		ProjectionWorker: projectionWorker,
		ProfileSync:      profileSync,
		Logger:           sysLogger,
		pubSub:           pubSub,
		natsPub:          natsPub,
		natsSub:          natsSub,
		rdb:              rdb,
		sysLogger:        sysLogger,
		wsLogger:         wsLogger,
	}
}

// Start launches the background workers. They stop when ctx is cancelled.
func (c *Container) Start(ctx context.Context) {
	log.Println("Background: Starting presence projection...")
	if err := c.ProjectionWorker.Run(ctx); err != nil {
		log.Printf("Background Projection Error: %v", err)
	}

	if c.natsSub != nil {
		subject := pktNats.Subject(events.TypeProfileUpserted)
		if err := c.natsSub.Subscribe(ctx, subject, profileSyncDurable, c.ProfileSync.Handle); err != nil {
			log.Printf("[WARN] Failed to subscribe to %s: %v", subject, err)
		}
	}
}

func (c *Container) Close() {
	if c.natsSub != nil {
		c.natsSub.Close()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if err := c.pubSub.Close(); err != nil {
		log.Printf("[WARN] Failed to close event bus: %v", err)
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	_ = c.sysLogger.Sync()
	_ = c.wsLogger.Sync()
}
