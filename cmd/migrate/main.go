package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"counsel-chat-be/internal/entity"
	"counsel-chat-be/internal/model"
	"counsel-chat-be/internal/repository/unitofwork"
	"counsel-chat-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	seed := flag.Bool("seed", false, "seed demo student and counselor profiles")
	flag.Parse()

	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(dsn, true)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting GORM Migration...")

	// 3. Pre-Migration: Extensions
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warn: Failed to create pgcrypto extension: %v. Continuing...", err)
	}

	// 4. AutoMigrate
	models := []interface{}{
		&model.User{},
		&model.Conversation{},
		&model.Message{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 5. Post-Migration: constraints AutoMigrate cannot express
	postMigrationSQL := []string{
		`DO $$ BEGIN
		   ALTER TABLE messages ADD CONSTRAINT fk_messages_conversation
		     FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE;
		 EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
		`DO $$ BEGIN
		   ALTER TABLE conversations ADD CONSTRAINT chk_conversations_distinct_participants
		     CHECK (participant_a <> participant_b);
		 EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	if *seed {
		seedProfiles(unitofwork.NewRepositoryFactory(db))
	}

	log.Println("✅ Success: Database migration completed successfully via GORM.")
}

func seedProfiles(factory unitofwork.RepositoryFactory) {
	ctx := context.Background()
	users := factory.NewUnitOfWork(ctx).UserRepository()
	now := time.Now()

	profiles := []*entity.User{
		{Id: "student-1", DisplayName: "Alex Rivera", Role: entity.UserRoleStudent, LastSeen: now},
		{Id: "student-2", DisplayName: "Jordan Lee", Role: entity.UserRoleStudent, LastSeen: now},
		{Id: "counselor-1", DisplayName: "Dr. Maya Chen", Role: entity.UserRoleCounselor, LastSeen: now},
		{Id: "counselor-2", DisplayName: "Dr. Sam Okafor", Role: entity.UserRoleCounselor, LastSeen: now},
	}
	for _, p := range profiles {
		if err := users.Upsert(ctx, p); err != nil {
			log.Fatalf("Error: Failed to seed profile %s: %v", p.Id, err)
		}
	}
	log.Printf("Seeded %d profiles", len(profiles))
}
