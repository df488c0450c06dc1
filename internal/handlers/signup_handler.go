package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"tecnodash/internal/services"
	"tecnodash/pkg/config"
	"tecnodash/pkg/cookie"
	"tecnodash/pkg/logger"
	"tecnodash/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// SignupFlow 注册流程
type SignupFlow interface {
	PreSignup(ctx context.Context, input services.PreSignupInput) (*services.PreSignupResult, error)
	StartCompletion(ctx context.Context, cookie, code string) *services.SignupStream
}

// SignupHandler 租户注册接口
type SignupHandler struct {
	signup   SignupFlow
	jar      *cookie.Jar
	upgrader websocket.Upgrader
	log      *logrus.Logger
}

// PreSignupRequest 预注册请求
type PreSignupRequest struct {
	CompanyName string `json:"nomeEmpresa" binding:"required"`
	Phone       string `json:"telefone" binding:"required"`
	CNPJ        string `json:"cnpj" binding:"required,cnpj"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"senha" binding:"required,min=6,max=255"`
}

func NewSignupHandler(signup SignupFlow, jar *cookie.Jar, cors config.CORSConfig) *SignupHandler {
	RegisterValidators()
	allowedOrigins := cors.AllowOrigins

	return &SignupHandler{
		signup: signup,
		jar:    jar,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// 同源请求不带Origin
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || matchOrigin(origin, allowed) {
						return true
					}
				}
				logger.GetLogger().Warnf("WebSocket连接被拒绝，非法Origin: %s", origin)
				return false
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logger.GetLogger(),
	}
}

// matchOrigin 支持 https://*.example.com 形式的通配
func matchOrigin(origin, pattern string) bool {
	if origin == pattern {
		return true
	}
	scheme, host, ok := strings.Cut(pattern, "://*.")
	if !ok {
		return false
	}
	return strings.HasPrefix(origin, scheme+"://") && strings.HasSuffix(origin, "."+host)
}

// PreSignup 预注册：校验数据、发送验证码并写入验证Cookie
func (h *SignupHandler) PreSignup(c *gin.Context) {
	var req PreSignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, validationMessage(err))
		return
	}

	result, err := h.signup.PreSignup(c.Request.Context(), services.PreSignupInput{
		CompanyName: req.CompanyName,
		Email:       req.Email,
		Phone:       req.Phone,
		CNPJ:        req.CNPJ,
		Password:    req.Password,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	h.jar.Set(c, cookie.VerifyEmail, result.CookieValue, result.MaxAge)
	response.SuccessWithMessage(c, "ok", nil)
}

// CompleteSSE 以 Server-Sent Events 推送注册进度
func (h *SignupHandler) CompleteSSE(c *gin.Context) {
	stagingID, _ := c.Cookie(cookie.VerifyEmail)
	stream := h.signup.StartCompletion(c.Request.Context(), stagingID, c.Query("codigo"))

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		event, ok := <-stream.Events()
		if !ok {
			return false
		}
		c.SSEvent("message", event)
		return true
	})
}

// CompleteWebSocket 以WebSocket推送注册进度，流程结束后正常关闭连接
func (h *SignupHandler) CompleteWebSocket(c *gin.Context) {
	stagingID, _ := c.Cookie(cookie.VerifyEmail)
	code := c.Query("codigo")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorf("WebSocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	// 客户端断开时取消订阅
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	stream := h.signup.StartCompletion(ctx, stagingID, code)
	for event := range stream.Events() {
		if err := conn.WriteJSON(event); err != nil {
			// 流程在后台继续执行
			h.log.WithField("step", event.Step).Debugf("推送注册进度失败: %v", err)
			return
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
