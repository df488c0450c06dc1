package middleware

import (
	"context"

	"tecnodash/internal/database"
	"tecnodash/internal/services"
	"tecnodash/pkg/cookie"
	apperrors "tecnodash/pkg/errors"
	"tecnodash/pkg/response"

	"github.com/gin-gonic/gin"
)

// 上下文键
const (
	ContextIdentity = "identity"
	ContextTenantDB = "tenant_db"
)

const msgCookieMissing = "Cookie de sessão não encontrado"

// SessionVerifier 校验会话Cookie对应的登录状态
type SessionVerifier interface {
	VerifyLoggedIn(ctx context.Context, sessionID string) (*services.Identity, error)
}

// TenantResolver 按租户获取其数据库连接
type TenantResolver interface {
	Get(ctx context.Context, legalID, baseInfo string) (*database.TenantConn, error)
}

// SessionMiddleware 会话相关中间件
type SessionMiddleware struct {
	verifier SessionVerifier
	tenants  TenantResolver
	jar      *cookie.Jar
}

func NewSessionMiddleware(verifier SessionVerifier, tenants TenantResolver, jar *cookie.Jar) *SessionMiddleware {
	return &SessionMiddleware{verifier: verifier, tenants: tenants, jar: jar}
}

// RequireCookie 请求未携带指定Cookie时返回400
func RequireCookie(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if value, err := c.Cookie(name); err != nil || value == "" {
			response.BadRequest(c, msgCookieMissing)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireSession 校验登录状态，失败时清除会话Cookie并返回401
func (m *SessionMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, _ := c.Cookie(cookie.Session)
		identity, err := m.verifier.VerifyLoggedIn(c.Request.Context(), sessionID)
		if err != nil {
			m.jar.Clear(c, cookie.Session)
			response.Unauthorized(c, apperrors.PublicMessage(err))
			c.Abort()
			return
		}

		c.Set(ContextIdentity, identity)
		c.Next()
	}
}

// TenantScope 为已登录请求挂载租户数据库连接，需在 RequireSession 之后使用
func (m *SessionMiddleware) TenantScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok || identity.Session == nil {
			response.Unauthorized(c, "Sessão inválida. Faça login novamente.")
			c.Abort()
			return
		}

		conn, err := m.tenants.Get(c.Request.Context(), identity.Session.CNPJ, identity.Session.BaseInfo)
		if err != nil {
			response.FromError(c, err)
			c.Abort()
			return
		}

		c.Set(ContextTenantDB, conn)
		c.Next()
	}
}

// CurrentIdentity 读取 RequireSession 写入的登录信息
func CurrentIdentity(c *gin.Context) (*services.Identity, bool) {
	value, exists := c.Get(ContextIdentity)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*services.Identity)
	return identity, ok
}

// CurrentTenantDB 读取 TenantScope 写入的租户连接
func CurrentTenantDB(c *gin.Context) (*database.TenantConn, bool) {
	value, exists := c.Get(ContextTenantDB)
	if !exists {
		return nil, false
	}
	conn, ok := value.(*database.TenantConn)
	return conn, ok
}
