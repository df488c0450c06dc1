package response

import (
	"net/http"

	"tecnodash/pkg/errors"
	"tecnodash/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Response 统一返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ========== 基础返回方法 ==========

// Success 成功返回
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 成功返回（自定义消息）
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error 通用错误返回，HTTP状态码与业务码一致
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

// FromError 按错误类别返回，内部错误只记录日志不外泄
func FromError(c *gin.Context, err error) {
	kind := errors.KindOf(err)
	if kind == errors.KindProvisioning || kind == errors.KindInternal {
		logger.GetLogger().WithField("path", c.FullPath()).Errorf("请求处理失败: %v", err)
	}
	Error(c, errors.HTTPCode(kind), errors.PublicMessage(err))
}

// ========== HTTP错误快捷方法 ==========

func BadRequest(c *gin.Context, message string) {
	Error(c, errors.CodeInvalidParam, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, errors.CodeUnauthorized, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, errors.CodeServerError, message)
}
