package repository

import (
	"context"

	"peb_market/internal/domain/user/model"

	"gorm.io/gorm"
)

// UserRepository 用户只读仓库
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	ListByRole(ctx context.Context, role string) ([]model.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建新的仓库实例
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// GetByID 根据ID获取用户
func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListByRole 按角色列出用户，例如全部运营人员
func (r *userRepository) ListByRole(ctx context.Context, role string) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Where("role = ?", role).Order("created_at").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
