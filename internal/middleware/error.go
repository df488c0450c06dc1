package middleware

import (
	"tecnodash/pkg/logger"
	"tecnodash/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorHandler 捕获panic，返回统一的500响应
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.GetLogger().WithFields(logrus.Fields{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
				}).Errorf("Panic recovered: %v", err)
				response.ServerError(c, "Erro interno do servidor")
				c.Abort()
			}
		}()

		c.Next()
	}
}

// RequestLogger 使用应用日志记录每个请求
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		entry := logger.GetLogger().WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"ip":     c.ClientIP(),
		})
		if c.Writer.Status() >= 500 {
			entry.Warn("请求失败")
			return
		}
		entry.Debug("请求完成")
	}
}
