package services

import (
	"context"
	"errors"
	"time"

	"tecnodash/internal/database"
	"tecnodash/internal/models"
	"tecnodash/pkg/cache"
	apperrors "tecnodash/pkg/errors"
	"tecnodash/pkg/jwt"
	"tecnodash/pkg/logger"
)

const (
	sessionKeyPrefix = "session:id:"

	msgBadCredentials  = "Usuário ou senha incorretos"
	msgSessionExpired  = "Sessão expirada. Faça login novamente."
	msgSessionGone     = "Sua sessão expirou. Por favor faça o login novamente"
	msgTenantSuspended = "Sua conta está suspensa. Entre em contato para mais informações"
	msgSessionInvalid  = "Sessão inválida. Faça login novamente."
)

var errSessionOutOfSync = errors.New("会话记录与缓存不一致")

// SessionRecord 缓存中的会话镜像
type SessionRecord struct {
	TenantID     string `json:"tenantId"`
	UserID       string `json:"userId"`
	CNPJ         string `json:"cnpj"`
	BaseInfo     string `json:"baseinfo"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	IP           string `json:"ip"`
	UserAgent    string `json:"userAgent"`
}

// LoginInput 登录参数
type LoginInput struct {
	Login     string
	Password  string
	IP        string
	UserAgent string
}

// ActiveSession 同一租户的其他在线会话，IP已脱敏
type ActiveSession struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"criadoEm"`
	ExpiresAt time.Time `json:"expiraEm"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
}

// LoginResult 登录结果，SessionID 写入会话Cookie，有效期截止到 ExpiresAt
type LoginResult struct {
	SessionID      string
	ExpiresAt      time.Time
	ActiveSessions []ActiveSession
}

// IdentityUser 已登录用户
type IdentityUser struct {
	ID          string `json:"id"`
	CompanyName string `json:"nomeEmpresa"`
	Email       string `json:"email,omitempty"`
}

// Identity 登录状态校验结果
type Identity struct {
	Auth bool         `json:"auth"`
	User IdentityUser `json:"user"`

	Session *SessionRecord `json:"-"`
}

// AuthService 登录、登出和登录状态校验
type AuthService struct {
	tenants  TenantStore
	sessions SessionStore
	cache    *cache.Store
	issuer   *jwt.Issuer
	now      func() time.Time
}

// NewAuthService 创建认证服务
func NewAuthService(tenants TenantStore, sessions SessionStore, store *cache.Store, issuer *jwt.Issuer) *AuthService {
	return &AuthService{
		tenants:  tenants,
		sessions: sessions,
		cache:    store,
		issuer:   issuer,
		now:      time.Now,
	}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// sessionTTL 缓存镜像的有效期，向上取整到秒且至少1秒
func sessionTTL(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl <= time.Second {
		return time.Second
	}
	if rem := ttl % time.Second; rem != 0 {
		ttl += time.Second - rem
	}
	return ttl
}

// Login 校验密码后签发令牌，在一个事务中写入会话记录和缓存镜像
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	tenant, err := s.tenants.FindTenantByEmail(ctx, input.Login)
	if err != nil {
		return nil, apperrors.Internal("查询租户失败", err)
	}
	if tenant == nil {
		models.BurnPasswordCheck(input.Password)
		return nil, apperrors.Unauthorized(msgBadCredentials)
	}
	if !tenant.CheckPassword(input.Password) {
		return nil, apperrors.Unauthorized(msgBadCredentials)
	}

	baseInfo := database.BaseInfoFromDBName(tenant.DBName)

	var result LoginResult
	err = s.sessions.Transaction(ctx, func(tx SessionStore) error {
		access, err := s.issuer.IssueAccess(jwt.AccessSubject{
			TenantID:    tenant.TenantID,
			CompanyName: tenant.CompanyName,
			Email:       tenant.Email,
			CNPJ:        tenant.CNPJ,
			BaseInfo:    baseInfo,
		})
		if err != nil {
			return err
		}
		refresh, err := s.issuer.IssueRefresh(tenant.TenantID, tenant.CNPJ, baseInfo)
		if err != nil {
			return err
		}

		session := &models.Session{
			TenantID:     tenant.TenantID,
			Token:        access.Token,
			RefreshToken: refresh.Token,
			ExpiresAt:    refresh.ExpiresAt,
			Active:       true,
			IP:           input.IP,
			UserAgent:    input.UserAgent,
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			return err
		}

		record := SessionRecord{
			TenantID:     tenant.TenantID,
			UserID:       tenant.TenantID,
			CNPJ:         tenant.CNPJ,
			BaseInfo:     baseInfo,
			AccessToken:  access.Token,
			RefreshToken: refresh.Token,
			IP:           input.IP,
			UserAgent:    input.UserAgent,
		}
		ttl := sessionTTL(refresh.ExpiresAt, s.now())
		if err := s.cache.Set(ctx, sessionKey(session.ID), record, ttl); err != nil {
			return err
		}

		result = LoginResult{SessionID: session.ID, ExpiresAt: refresh.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("创建会话失败", err)
	}

	result.ActiveSessions = s.otherActiveSessions(ctx, tenant.TenantID, result.SessionID)

	logger.GetLogger().WithField("tenant_id", tenant.TenantID).Info("租户登录成功")
	return &result, nil
}

func (s *AuthService) otherActiveSessions(ctx context.Context, tenantID, currentID string) []ActiveSession {
	sessions, err := s.sessions.ListActiveSessions(ctx, tenantID, s.now())
	if err != nil {
		logger.GetLogger().Warnf("查询在线会话失败: %v", err)
		return nil
	}

	var active []ActiveSession
	for _, session := range sessions {
		if session.ID == currentID {
			continue
		}
		active = append(active, ActiveSession{
			ID:        session.ID,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
			IP:        MaskIP(session.IP),
			UserAgent: session.UserAgent,
		})
	}
	return active
}

// Logout 关闭会话并删除缓存镜像，两步互不影响，错误只记录不返回
func (s *AuthService) Logout(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}

	log := logger.GetLogger().WithField("session_id", sessionID)
	if err := s.sessions.TerminateSession(ctx, sessionID, models.ReasonUserLogout, s.now()); err != nil {
		log.Warnf("关闭会话记录失败: %v", err)
	}
	if _, err := s.cache.Delete(ctx, sessionKey(sessionID)); err != nil {
		log.Warnf("删除会话缓存失败: %v", err)
	}
}

// VerifyLoggedIn 访问令牌有效时直接返回；否则用刷新令牌换发新的访问令牌
func (s *AuthService) VerifyLoggedIn(ctx context.Context, sessionID string) (*Identity, error) {
	if sessionID == "" {
		return nil, apperrors.Unauthorized(msgSessionExpired)
	}

	log := logger.GetLogger().WithField("session_id", sessionID)

	var record SessionRecord
	found, err := s.cache.Get(ctx, sessionKey(sessionID), &record)
	if err != nil {
		log.Errorf("读取会话缓存失败: %v", err)
		return nil, apperrors.Unauthorized(msgSessionInvalid)
	}
	if !found {
		return nil, apperrors.Unauthorized(msgSessionExpired)
	}

	if record.AccessToken != "" {
		if claims, err := s.issuer.VerifyAccess(record.AccessToken); err == nil {
			return &Identity{
				Auth: true,
				User: IdentityUser{
					ID:          claims.Subject,
					CompanyName: claims.CompanyName,
					Email:       claims.Email,
				},
				Session: &record,
			}, nil
		}
	}

	if record.RefreshToken == "" {
		return nil, apperrors.Unauthorized(msgSessionExpired)
	}
	claims, err := s.issuer.VerifyRefresh(record.RefreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized(msgSessionInvalid)
	}

	session, err := s.sessions.FindActiveSession(ctx, record.RefreshToken, claims.Subject)
	if err != nil {
		log.Errorf("查询会话失败: %v", err)
		return nil, apperrors.Unauthorized(msgSessionInvalid)
	}
	if session == nil || session.Tenant == nil {
		return nil, apperrors.Unauthorized(msgSessionGone)
	}
	tenant := session.Tenant
	if !tenant.Active {
		return nil, apperrors.Unauthorized(msgTenantSuspended)
	}

	access, err := s.issuer.IssueAccess(jwt.AccessSubject{
		TenantID:    tenant.TenantID,
		CompanyName: tenant.CompanyName,
		Email:       tenant.Email,
		CNPJ:        claims.CNPJ,
		BaseInfo:    claims.BaseInfo,
	})
	if err != nil {
		log.Errorf("签发访问令牌失败: %v", err)
		return nil, apperrors.Unauthorized(msgSessionInvalid)
	}
	record.AccessToken = access.Token

	err = s.sessions.Transaction(ctx, func(tx SessionStore) error {
		rows, err := tx.UpdateSessionToken(ctx, record.RefreshToken, access.Token)
		if err != nil {
			return err
		}
		if rows != 1 {
			return errSessionOutOfSync
		}
		updated, err := s.cache.Update(ctx, sessionKey(sessionID), record)
		if err != nil {
			return err
		}
		if !updated {
			return errSessionOutOfSync
		}
		return nil
	})
	if err != nil {
		log.Errorf("刷新会话失败: %v", err)
		return nil, apperrors.Unauthorized(msgSessionInvalid)
	}

	log.Debug("访问令牌已刷新")
	return &Identity{
		Auth: true,
		User: IdentityUser{
			ID:          tenant.TenantID,
			CompanyName: tenant.CompanyName,
			Email:       tenant.Email,
		},
		Session: &record,
	}, nil
}
