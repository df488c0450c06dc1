package services

import (
	"context"
	"errors"
	"time"

	"tecnodash/internal/models"

	"gorm.io/gorm"
)

// TenantStore 主库中的租户及跳转记录
type TenantStore interface {
	ExistsByEmailOrCNPJ(ctx context.Context, email, cnpj string) (bool, error)
	// CreateTenant 租户与其跳转记录一次写入，写入后 tenant 中带有生成的ID
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	DeleteRedirects(ctx context.Context, userIDs []uint) error
	DeleteTenant(ctx context.Context, tenantID string) error
	// FindTenantByEmail 不存在时返回 nil, nil
	FindTenantByEmail(ctx context.Context, email string) (*models.Tenant, error)
}

// SessionStore 主库中的登录会话
type SessionStore interface {
	Transaction(ctx context.Context, fn func(tx SessionStore) error) error
	CreateSession(ctx context.Context, session *models.Session) error
	// FindActiveSession 按刷新令牌和租户查找有效会话并带出租户，不存在时返回 nil, nil
	FindActiveSession(ctx context.Context, refreshToken, tenantID string) (*models.Session, error)
	UpdateSessionToken(ctx context.Context, refreshToken, token string) (int64, error)
	TerminateSession(ctx context.Context, sessionID, reason string, at time.Time) error
	ListActiveSessions(ctx context.Context, tenantID string, now time.Time) ([]models.Session, error)
	ExpireSessions(ctx context.Context, now time.Time, reason string) (int64, error)
}

// GormMasterStore 基于gorm的主库访问
type GormMasterStore struct {
	db *gorm.DB
}

// NewGormMasterStore 创建主库访问对象
func NewGormMasterStore(db *gorm.DB) *GormMasterStore {
	return &GormMasterStore{db: db}
}

func (s *GormMasterStore) ExistsByEmailOrCNPJ(ctx context.Context, email, cnpj string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("email = ? OR cnpj = ?", email, cnpj).
		Count(&count).Error
	return count > 0, err
}

func (s *GormMasterStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	return s.db.WithContext(ctx).Create(tenant).Error
}

func (s *GormMasterStore) DeleteRedirects(ctx context.Context, userIDs []uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("user_id IN ?", userIDs).Delete(&models.TenantRedirect{}).Error
}

func (s *GormMasterStore) DeleteTenant(ctx context.Context, tenantID string) error {
	return s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Delete(&models.Tenant{}).Error
}

func (s *GormMasterStore) FindTenantByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// Transaction 在同一个事务中执行会话操作，fn 返回错误时回滚
func (s *GormMasterStore) Transaction(ctx context.Context, fn func(tx SessionStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormMasterStore{db: tx})
	})
}

func (s *GormMasterStore) CreateSession(ctx context.Context, session *models.Session) error {
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *GormMasterStore) FindActiveSession(ctx context.Context, refreshToken, tenantID string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).
		Preload("Tenant").
		Where("refresh_token = ? AND tenant_id = ? AND active = ?", refreshToken, tenantID, true).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *GormMasterStore) UpdateSessionToken(ctx context.Context, refreshToken, token string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("refresh_token = ?", refreshToken).
		Update("token", token)
	return result.RowsAffected, result.Error
}

func (s *GormMasterStore) TerminateSession(ctx context.Context, sessionID, reason string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"active":             false,
			"terminated_at":      at,
			"termination_reason": reason,
		}).Error
}

func (s *GormMasterStore) ListActiveSessions(ctx context.Context, tenantID string, now time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ? AND expires_at > ?", tenantID, true, now).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// ExpireSessions 把已过期但仍标记为有效的会话全部关闭
func (s *GormMasterStore) ExpireSessions(ctx context.Context, now time.Time, reason string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("active = ? AND expires_at <= ?", true, now).
		Updates(map[string]interface{}{
			"active":             false,
			"terminated_at":      now,
			"termination_reason": reason,
		})
	return result.RowsAffected, result.Error
}
