package models

import (
	"golang.org/x/crypto/bcrypt"
)

// dummyHash 用于租户不存在时仍执行一次比较，两种失败耗时一致
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3ZvR1j6ZqZQ7nG9mS1b7K2W")

// HashPassword 生成带盐的单向哈希
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword 比较明文与哈希
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// BurnPasswordCheck 对固定哈希做一次比较，结果总是 false
func BurnPasswordCheck(password string) bool {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
	return false
}
