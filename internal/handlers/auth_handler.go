package handlers

import (
	"context"
	"net/http"
	"time"

	"tecnodash/internal/middleware"
	"tecnodash/internal/services"
	"tecnodash/pkg/cookie"
	"tecnodash/pkg/response"

	"github.com/gin-gonic/gin"
)

// Authenticator 登录、登出和登录状态校验
type Authenticator interface {
	Login(ctx context.Context, input services.LoginInput) (*services.LoginResult, error)
	Logout(ctx context.Context, sessionID string)
	VerifyLoggedIn(ctx context.Context, sessionID string) (*services.Identity, error)
}

type AuthHandler struct {
	auth Authenticator
	jar  *cookie.Jar
	now  func() time.Time
}

func NewAuthHandler(auth Authenticator, jar *cookie.Jar) *AuthHandler {
	RegisterValidators()
	return &AuthHandler{auth: auth, jar: jar, now: time.Now}
}

type LoginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"senha" binding:"required"`
}

type LoginResponse struct {
	ActiveSessions []services.ActiveSession `json:"sessoesAtivas"`
}

// Login 登录成功后写入会话Cookie，存在其他在线会话时一并返回
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, validationMessage(err))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), services.LoginInput{
		Login:     req.Login,
		Password:  req.Password,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	h.jar.Set(c, cookie.Session, result.SessionID, result.ExpiresAt.Sub(h.now()))

	if len(result.ActiveSessions) > 0 {
		response.Success(c, LoginResponse{ActiveSessions: result.ActiveSessions})
		return
	}
	response.SuccessWithMessage(c, "ok", nil)
}

// Logout 登出，无论会话是否存在都清除Cookie
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID, _ := c.Cookie(cookie.Session)
	h.auth.Logout(c.Request.Context(), sessionID)

	h.jar.Clear(c, cookie.Session)
	response.SuccessWithMessage(c, "ok", nil)
}

// VerifyLoggedIn 校验登录状态，任何失败都清除会话Cookie并返回401
func (h *AuthHandler) VerifyLoggedIn(c *gin.Context) {
	sessionID, _ := c.Cookie(cookie.Session)
	identity, err := h.auth.VerifyLoggedIn(c.Request.Context(), sessionID)
	if err != nil {
		h.jar.Clear(c, cookie.Session)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	response.Success(c, identity)
}

// Me 当前登录租户及其数据库概况
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Sessão inválida. Faça login novamente.")
		return
	}

	data := gin.H{"user": identity.User}
	if conn, ok := middleware.CurrentTenantDB(c); ok {
		var users int64
		if err := conn.DB.WithContext(c.Request.Context()).Table("users").Count(&users).Error; err != nil {
			response.FromError(c, err)
			return
		}
		data["database"] = conn.Name
		data["usuarios"] = users
	}
	response.Success(c, data)
}
