package repository

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/study-buddy/internal/database"
	"github.com/fyerfyer/study-buddy/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

// userRepository 用户仓储实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 使用全局数据库连接创建用户仓储实例
func NewUserRepository() UserRepository {
	return &userRepository{db: database.MustDB()}
}

// NewUserRepositoryWithDB 使用指定的数据库连接创建用户仓储实例
func NewUserRepositoryWithDB(db *gorm.DB) UserRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &userRepository{db: db}
}

// GetOrCreate 按外部ID获取用户，不存在时创建
func (r *userRepository) GetOrCreate(externalID, email string) (*models.User, error) {
	if externalID == "" {
		return nil, errors.New("external user ID cannot be empty")
	}

	user := &models.User{
		ID:         uuid.New().String(),
		ExternalID: externalID,
		Email:      email,
	}
	// 并发请求同时创建同一个用户时，唯一索引冲突直接忽略
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return r.GetByExternalID(externalID)
}

// GetByExternalID 按外部ID获取用户
func (r *userRepository) GetByExternalID(externalID string) (*models.User, error) {
	var user models.User
	err := r.db.Where("external_id = ?", externalID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, externalID)
		}
		return nil, err
	}
	return &user, nil
}
