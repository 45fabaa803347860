package implementation

import (
	"context"
	"errors"
	"time"

	"counsel-chat-be/internal/entity"
	"counsel-chat-be/internal/mapper"
	"counsel-chat-be/internal/model"
	"counsel-chat-be/internal/repository/contract"
	"counsel-chat-be/internal/repository/scope"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewUserRepository(db *gorm.DB) contract.UserRepository {
	return &UserRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *UserRepositoryImpl) FindById(ctx context.Context, id string) (*entity.User, error) {
	var m model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.UserToEntity(&m), nil
}

func (r *UserRepositoryImpl) FindByIds(ctx context.Context, ids []string) ([]*entity.User, error) {
	if len(ids) == 0 {
		return []*entity.User{}, nil
	}

	var models []*model.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.UsersToEntities(models), nil
}

func (r *UserRepositoryImpl) FindByRole(ctx context.Context, role entity.UserRole) ([]*entity.User, error) {
	var models []*model.User
	err := r.db.WithContext(ctx).
		Scopes(scope.OnlineFirst).
		Where("role = ?", string(role)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return r.mapper.UsersToEntities(models), nil
}

func (r *UserRepositoryImpl) Upsert(ctx context.Context, user *entity.User) error {
	m := r.mapper.UserToModel(user)
	if m.LastSeen.IsZero() {
		m.LastSeen = time.Now()
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "role", "updated_at"}),
		}).
		Create(m).Error
	if err != nil {
		return err
	}
	*user = *r.mapper.UserToEntity(m)
	return nil
}

func (r *UserRepositoryImpl) UpdatePresence(ctx context.Context, id string, online bool, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND last_seen < ?", id, at).
		Updates(map[string]interface{}{
			"is_online": online,
			"last_seen": at,
		}).Error
}
