package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户模型，ExternalID为认证服务中的用户标识
type User struct {
	ID         string    `gorm:"primaryKey;size:36"`
	ExternalID string    `gorm:"size:128;not null;uniqueIndex"`
	Email      string    `gorm:"size:255"`
	CreatedAt  time.Time `gorm:"not null"`
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (User) TableName() string {
	return "users"
}
