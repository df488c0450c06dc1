package errors

import (
	"errors"
	"fmt"
)

// ========== 错误码常量定义 ==========

// CodeSuccess 成功码
const (
	CodeSuccess = 200
)

// HTTP层错误码 (400-599)
const (
	CodeInvalidParam = 400
	CodeUnauthorized = 401
	CodeConflict     = 409
	CodeServerError  = 500
)

// ========== 业务错误分类 ==========

// Kind 错误类别
type Kind int

const (
	KindInternal Kind = iota
	KindConflict
	KindInvalidInput
	KindUnauthorized
	KindProvisioning
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindProvisioning:
		return "provisioning"
	default:
		return "internal"
	}
}

// GenericMessage 对外展示的通用错误信息，不暴露基础设施细节
const GenericMessage = "Erro ao preparar o ambiente do usuário."

// AppError 带类别的业务错误
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func Conflict(message string) error {
	return &AppError{Kind: KindConflict, Message: message}
}

func InvalidInput(message string) error {
	return &AppError{Kind: KindInvalidInput, Message: message}
}

func Unauthorized(message string) error {
	return &AppError{Kind: KindUnauthorized, Message: message}
}

// Provisioning 建库或迁移失败，cause 只记录日志
func Provisioning(message string, cause error) error {
	return &AppError{Kind: KindProvisioning, Message: message, Err: cause}
}

func Internal(message string, cause error) error {
	return &AppError{Kind: KindInternal, Message: message, Err: cause}
}

// KindOf 返回错误类别，非 AppError 一律视为内部错误
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage 返回可以直接展示给调用方的信息
func PublicMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return GenericMessage
	}
	switch appErr.Kind {
	case KindConflict, KindInvalidInput, KindUnauthorized:
		return appErr.Message
	default:
		return GenericMessage
	}
}

// HTTPCode 错误类别对应的响应码
func HTTPCode(kind Kind) int {
	switch kind {
	case KindConflict:
		return CodeConflict
	case KindInvalidInput:
		return CodeInvalidParam
	case KindUnauthorized:
		return CodeUnauthorized
	default:
		return CodeServerError
	}
}
