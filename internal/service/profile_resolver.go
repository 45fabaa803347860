package service

import (
	"context"
	"time"

	"counsel-chat-be/internal/entity"
	"counsel-chat-be/internal/repository/unitofwork"

	"github.com/patrickmn/go-cache"
)

// ProfileResolver reads display names and roles from the profile read-model through a
// short-lived cache. Presence fields on cached profiles are not kept current.
// A ttl <= 0 disables caching; go-cache would otherwise keep entries forever.
type ProfileResolver struct {
	uowFactory unitofwork.RepositoryFactory
	cache      *cache.Cache
	caching    bool
}

func NewProfileResolver(uowFactory unitofwork.RepositoryFactory, ttl time.Duration) *ProfileResolver {
	return &ProfileResolver{
		uowFactory: uowFactory,
		cache:      cache.New(ttl, 2*ttl),
		caching:    ttl > 0,
	}
}

func (r *ProfileResolver) remember(user *entity.User) {
	if r.caching {
		r.cache.Set(user.Id, user, cache.DefaultExpiration)
	}
}

// Resolve returns (nil, nil) for an unknown id. Misses are not cached.
func (r *ProfileResolver) Resolve(ctx context.Context, userId string) (*entity.User, error) {
	if x, found := r.cache.Get(userId); found {
		return x.(*entity.User), nil
	}

	uow := r.uowFactory.NewUnitOfWork(ctx)
	user, err := uow.UserRepository().FindById(ctx, userId)
	if err != nil {
		return nil, err
	}
	if user != nil {
		r.remember(user)
	}
	return user, nil
}

func (r *ProfileResolver) ResolveMany(ctx context.Context, userIds []string) (map[string]*entity.User, error) {
	result := make(map[string]*entity.User, len(userIds))
	var missing []string
	for _, id := range userIds {
		if x, found := r.cache.Get(id); found {
			result[id] = x.(*entity.User)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}

	uow := r.uowFactory.NewUnitOfWork(ctx)
	users, err := uow.UserRepository().FindByIds(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		r.remember(u)
		result[u.Id] = u
	}
	return result, nil
}

// DisplayName falls back to the id when the profile is unknown or unreadable.
func (r *ProfileResolver) DisplayName(ctx context.Context, userId string) string {
	user, err := r.Resolve(ctx, userId)
	if err != nil || user == nil || user.DisplayName == "" {
		return userId
	}
	return user.DisplayName
}

func (r *ProfileResolver) Invalidate(userId string) {
	r.cache.Delete(userId)
}
