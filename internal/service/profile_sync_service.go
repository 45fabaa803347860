package service

import (
	"context"

	"counsel-chat-be/internal/entity"
	"counsel-chat-be/internal/pkg/logger"
	"counsel-chat-be/internal/pkg/serverutils"
	"counsel-chat-be/internal/repository/unitofwork"
	"counsel-chat-be/pkg/events"
)

// ProfileSyncService keeps the profile read-model in step with PROFILE_UPSERTED events
// from the identity provider.
type ProfileSyncService struct {
	uowFactory unitofwork.RepositoryFactory
	profiles   *ProfileResolver
	logger     logger.ILogger
}

func NewProfileSyncService(uowFactory unitofwork.RepositoryFactory, profiles *ProfileResolver, log logger.ILogger) *ProfileSyncService {
	return &ProfileSyncService{uowFactory: uowFactory, profiles: profiles, logger: log}
}

// Handle returns an error only for store failures, so malformed events are acked and
// dropped instead of redelivered.
func (s *ProfileSyncService) Handle(ctx context.Context, event events.Event) error {
	payload := event.Payload()
	userId, _ := payload["user_id"].(string)
	displayName, _ := payload["display_name"].(string)
	role := entity.UserRole(stringValue(payload["role"]))

	if !serverutils.IsValidUserID(userId) || !role.IsValid() {
		s.logger.Warn("PROFILE_SYNC", "Ignoring malformed profile event", map[string]interface{}{
			"event":   event.EventType(),
			"user_id": userId,
			"role":    string(role),
		})
		return nil
	}
	if displayName == "" {
		displayName = userId
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	err := uow.UserRepository().Upsert(ctx, &entity.User{
		Id:          userId,
		DisplayName: displayName,
		Role:        role,
	})
	if err != nil {
		return persistenceError("upsert profile", err)
	}

	s.profiles.Invalidate(userId)
	s.logger.Info("PROFILE_SYNC", "Profile synced", map[string]interface{}{"user_id": userId, "role": string(role)})
	return nil
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
