package handlers

import (
	"errors"
	"strings"
	"sync"

	"tecnodash/internal/services"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators 向gin的校验器注册自定义规则
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("cnpj", validateCNPJ)
		}
	})
}

func validateCNPJ(fl validator.FieldLevel) bool {
	return ValidCNPJ(fl.Field().String())
}

// ValidCNPJ 校验CNPJ的两位校验位，允许带格式符号
func ValidCNPJ(value string) bool {
	digits := services.NormalizeCNPJ(value)
	if len(digits) != 14 {
		return false
	}
	if strings.Count(digits, digits[:1]) == len(digits) {
		return false
	}
	return checkDigit(digits[:12], []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}) == digits[12] &&
		checkDigit(digits[:13], []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}) == digits[13]
}

func checkDigit(digits string, weights []int) byte {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	rest := sum % 11
	if rest < 2 {
		return '0'
	}
	return byte('0' + 11 - rest)
}

// 字段规则对应的提示信息，未列出的使用通用提示
var validationMessages = map[string]string{
	"CompanyName.required": "Informe o nome da empresa.",
	"Phone.required":       "Informe um telefone.",
	"CNPJ.required":        "Informe o CNPJ.",
	"CNPJ.cnpj":            "CNPJ inválido.",
	"Email.required":       "Informe um e-mail.",
	"Email.email":          "Informe um e-mail válido.",
	"Password.min":         "A senha deve ter pelo menos 6 caracteres.",
	"Password.max":         "A senha deve ter no máximo 255 caracteres.",
	"Login.required":       "Informe um login válido",
	"Password.required":    "Informe uma senha válida",
}

// validationMessage 把绑定错误转换为面向用户的提示
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Dados da requisição inválidos."
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if msg, ok := validationMessages[fe.Field()+"."+fe.Tag()]; ok {
			messages = append(messages, msg)
			continue
		}
		messages = append(messages, "Campo inválido: "+fe.Field())
	}
	return strings.Join(messages, " ")
}
