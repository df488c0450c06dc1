package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tenant 租户（客户公司），每个租户拥有独立的数据库
type Tenant struct {
	TenantID     string         `json:"tenant_id" gorm:"primaryKey;size:36"`
	CNPJ         string         `json:"cnpj" gorm:"uniqueIndex;not null;size:14"`
	Email        string         `json:"email" gorm:"uniqueIndex;not null;size:255"`
	CompanyName  string         `json:"company_name" gorm:"not null;size:255"`
	Phone        string         `json:"phone" gorm:"size:20"`
	PasswordHash string         `json:"-" gorm:"not null;size:255"`
	DBName       string         `json:"-" gorm:"uniqueIndex;not null;size:63"`
	Active       bool           `json:"active" gorm:"not null;default:true"`
	RegistryData datatypes.JSON `json:"registry_data,omitempty" gorm:"type:jsonb"` // CNPJ查询返回的地址信息
	BaseModel

	Redirects []TenantRedirect `json:"redirects,omitempty" gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`
}

// TableName 表名
func (t *Tenant) TableName() string {
	return "tenants"
}

// BeforeCreate 生成租户ID
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.TenantID == "" {
		t.TenantID = uuid.NewString()
	}
	return nil
}

// SetPassword 设置密码
func (t *Tenant) SetPassword(password string) error {
	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}
	t.PasswordHash = hashed
	return nil
}

// CheckPassword 验证密码
func (t *Tenant) CheckPassword(password string) bool {
	return CheckPassword(t.PasswordHash, password)
}

// RedirectUserIDs 已创建的跳转记录ID
func (t *Tenant) RedirectUserIDs() []uint {
	ids := make([]uint, 0, len(t.Redirects))
	for _, r := range t.Redirects {
		ids = append(ids, r.UserID)
	}
	return ids
}
