package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"counsel-chat-be/internal/bootstrap"
	"counsel-chat-be/internal/config"
	"counsel-chat-be/internal/server"
	"counsel-chat-be/internal/tracer"
	"counsel-chat-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	if cfg.Auth.JwtSecret == "" {
		log.Fatal("Error: JWT_SECRET is not set")
	}

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.App.OtelEnabled)
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Tracer shutdown error: %v", err)
		}
	}()

	// 3. Initialize Database
	var gormDB *gorm.DB
	if cfg.Database.Driver != config.StoreDriverMemory {
		var err error
		gormDB, err = database.NewGormDBFromDSN(cfg.Database.Connection, !cfg.IsProduction())
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
	}

	// 4. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Close()

	// 5. Start Background Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	container.Start(ctx)

	// 6. Run Server
	srv := server.New(cfg, container)
	go func() {
		if err := srv.Run(); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := srv.Shutdown(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
