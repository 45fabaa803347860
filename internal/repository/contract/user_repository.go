package contract

import (
	"context"
	"time"

	"counsel-chat-be/internal/entity"
)

// UserRepository reads the profile read-model. Finders return (nil, nil) when
// nothing matches.
type UserRepository interface {
	FindById(ctx context.Context, id string) (*entity.User, error)
	FindByIds(ctx context.Context, ids []string) ([]*entity.User, error)
	FindByRole(ctx context.Context, role entity.UserRole) ([]*entity.User, error)
	Upsert(ctx context.Context, user *entity.User) error

	// UpdatePresence mirrors the registry. It is a no-op unless at is strictly after the
	// stored LastSeen, so out-of-order projection events cannot regress the record.
	UpdatePresence(ctx context.Context, id string, online bool, at time.Time) error
}
