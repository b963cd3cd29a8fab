package models

import (
	"github.com/google/uuid"
	"time"
)

// User is the login identity for the thin collaborator surface. It
// carries no tenant_id: the collaborator API currently pins every
// request to defaultTenantID (see internal/handlers) until a real
// multi-tenant login flow is built on top of it.
type User struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	Username    string     `json:"username" gorm:"uniqueIndex;size:64;not null"`
	Password    string     `json:"-" gorm:"size:255;not null"`
	Email       string     `json:"email" gorm:"uniqueIndex;size:128"`
	Phone       string     `json:"phone" gorm:"size:32"`
	Role        string     `json:"role" gorm:"size:32;default:user"` // admin, manager, user
	Status      int        `json:"status" gorm:"default:1"`          // 0: disabled, 1: enabled
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}
