package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session 登录会话
type Session struct {
	ID                string     `json:"id" gorm:"primaryKey;size:36"`
	TenantID          string     `json:"tenant_id" gorm:"not null;size:36;index"`
	Token             string     `json:"-" gorm:"type:text;not null"`
	RefreshToken      string     `json:"-" gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt         time.Time  `json:"expires_at" gorm:"not null;index"`
	Active            bool       `json:"active" gorm:"not null;default:true;index"`
	IP                string     `json:"ip" gorm:"size:64"`
	UserAgent         string     `json:"user_agent" gorm:"size:512"`
	CreatedAt         time.Time  `json:"created_at"`
	TerminatedAt      *time.Time `json:"terminated_at,omitempty"`
	TerminationReason *string    `json:"termination_reason,omitempty" gorm:"size:255"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID;references:TenantID;constraint:OnDelete:CASCADE"`
}

// TableName 表名
func (Session) TableName() string {
	return "sessions"
}

// BeforeCreate 生成会话ID
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// 会话结束原因
const (
	ReasonUserLogout = "Derrubado pelo usuário ao deslogar"
	ReasonExpired    = "Sessão expirada"
)
