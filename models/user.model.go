package models

import (
	"gorm.io/gorm"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	gorm.Model
	Name      string `gorm:"default:''"`
	Email     string `gorm:"unique;not null"`
	Mobile    string `gorm:"default:''"`
	Role      string `gorm:"default:'USER'"` // USER, ADMIN
	IsBlocked bool   `gorm:"default:false"`
	IsDeleted bool   `gorm:"default:false"`
}
