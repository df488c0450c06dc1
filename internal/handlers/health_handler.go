package handlers

import (
	"context"
	"net/http"
	"time"

	"tecnodash/pkg/response"

	"github.com/gin-gonic/gin"
)

// Pinger 健康检查依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 把普通函数适配为 Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health 依次检查主库和缓存，任一失败返回503
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	data := map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now(),
		"service":    "tecnodash",
		"components": components,
	}
	if status != "ok" {
		c.JSON(http.StatusServiceUnavailable, response.Response{Code: http.StatusServiceUnavailable, Message: status, Data: data})
		return
	}
	response.Success(c, data)
}

func Ping(c *gin.Context) {
	response.SuccessWithMessage(c, "pong", nil)
}
