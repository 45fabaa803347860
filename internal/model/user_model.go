package model

import (
	"time"
)

type User struct {
	Id          string    `gorm:"type:varchar(128);primaryKey"`
	DisplayName string    `gorm:"type:varchar(255);not null"`
	Role        string    `gorm:"type:varchar(20);not null;index"`
	IsOnline    bool      `gorm:"default:false;index"`
	LastSeen    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (User) TableName() string {
	return "profiles"
}
