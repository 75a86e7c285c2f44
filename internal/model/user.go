package model

import (
	"time"
)

type User struct {
	ID    int64  `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:50;not null" json:"name"`
	Email string `gorm:"size:100;uniqueIndex;not null" json:"email"`
	// 为空表示账号由外部系统创建，只能使用外部签发的 token
	PasswordHash string    `gorm:"size:255" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
