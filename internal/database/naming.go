package database

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// PostgreSQL 标识符最大长度
const maxIdentifierLength = 63

var (
	ErrMissingPlaceholder = errors.New("租户连接串模板中缺少占位符")
	ErrInvalidDBName      = errors.New("租户数据库名不合法")

	dbNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// DeriveDBName 由CNPJ、后缀和命名空间标记生成租户库名：
// 倒序CNPJ + "_" + token + "_" + suffix，整体小写
func DeriveDBName(legalID, suffix, token string) string {
	runes := []rune(legalID)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return strings.ToLower(string(runes) + "_" + token + "_" + suffix)
}

// ValidateDBName 检查库名只含小写字母、数字和下划线，且不超过63字节
func ValidateDBName(name string) error {
	if len(name) == 0 || len(name) > maxIdentifierLength {
		return fmt.Errorf("%w: 长度为 %d", ErrInvalidDBName, len(name))
	}
	if !dbNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %s", ErrInvalidDBName, name)
	}
	return nil
}

// DeriveConnectionString 把模板中的占位符替换为租户库名
func DeriveConnectionString(dbName, template, placeholder string) (string, error) {
	if placeholder == "" || !strings.Contains(template, placeholder) {
		return "", ErrMissingPlaceholder
	}
	return strings.Replace(template, placeholder, dbName, 1), nil
}

// BaseInfoFromDBName 从库名中取回签发令牌用的后缀（最后两段）
func BaseInfoFromDBName(dbName string) string {
	parts := strings.Split(dbName, "_")
	if len(parts) < 2 {
		return dbName
	}
	return strings.Join(parts[len(parts)-2:], "_")
}
