package models

import "time"

// TenantRedirect 主库中的登录跳转记录，把用户邮箱指向租户数据库
type TenantRedirect struct {
	UserID    uint      `json:"user_id" gorm:"primaryKey;autoIncrement"`
	TenantID  string    `json:"tenant_id" gorm:"not null;size:36;index"`
	Email     string    `json:"email" gorm:"not null;size:255;index"`
	DBName    string    `json:"-" gorm:"not null;size:63"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 表名
func (TenantRedirect) TableName() string {
	return "tenant_redirects"
}
