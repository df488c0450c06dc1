package jwt

import (
	"errors"
	"fmt"
	"time"

	"tecnodash/pkg/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

var ErrWrongTokenUse = errors.New("token用途不匹配")

// AccessClaims 访问令牌声明
type AccessClaims struct {
	CompanyName string `json:"nomeEmpresa"`
	Email       string `json:"email"`
	CNPJ        string `json:"cnpj"`
	BaseInfo    string `json:"baseinfo"`
	TenantID    string `json:"tenantId"`
	Use         string `json:"use"`
	jwt.RegisteredClaims
}

// RefreshClaims 刷新令牌声明
type RefreshClaims struct {
	CNPJ     string `json:"cnpj"`
	BaseInfo string `json:"baseinfo"`
	Use      string `json:"use"`
	jwt.RegisteredClaims
}

// AccessSubject 签发访问令牌所需的租户信息
type AccessSubject struct {
	TenantID    string
	CompanyName string
	Email       string
	CNPJ        string
	BaseInfo    string
}

// SignedToken 签名后的令牌及其绝对过期时间
type SignedToken struct {
	Token     string
	ExpiresAt time.Time
}

// ExpiresAtMillis 过期时间（毫秒时间戳），用于Cookie和缓存TTL
func (t SignedToken) ExpiresAtMillis() int64 {
	return t.ExpiresAt.UnixMilli()
}

// Issuer 令牌签发与校验
type Issuer struct {
	secret      []byte
	issuer      string
	audience    string
	accessTTL   time.Duration
	refreshHour int
	now         func() time.Time
}

// NewIssuer 创建签发器
func NewIssuer(cfg config.JWTConfig) *Issuer {
	return &Issuer{
		secret:      []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		audience:    cfg.Audience,
		accessTTL:   cfg.AccessTTL,
		refreshHour: cfg.RefreshHour,
		now:         time.Now,
	}
}

// WithClock 替换时钟
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// NextRefreshBoundary 下一个每日强制重新登录的时间点：
// 当前小时 >= hour 时为明天的 hour:00，否则为今天的 hour:00（按 now 所在时区）
func NextRefreshBoundary(now time.Time, hour int) time.Time {
	boundary := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if now.Hour() >= hour {
		boundary = time.Date(now.Year(), now.Month(), now.Day()+1, hour, 0, 0, 0, now.Location())
	}
	return boundary
}

// IssueAccess 签发访问令牌
func (i *Issuer) IssueAccess(subject AccessSubject) (SignedToken, error) {
	now := i.now()
	expiresAt := now.Add(i.accessTTL)

	claims := AccessClaims{
		CompanyName:      subject.CompanyName,
		Email:            subject.Email,
		CNPJ:             subject.CNPJ,
		BaseInfo:         subject.BaseInfo,
		TenantID:         subject.TenantID,
		Use:              useAccess,
		RegisteredClaims: i.registered(subject.TenantID, now, expiresAt),
	}
	return i.sign(claims, expiresAt)
}

// IssueRefresh 签发刷新令牌，有效期截止到下一个固定整点
func (i *Issuer) IssueRefresh(tenantID, cnpj, baseInfo string) (SignedToken, error) {
	now := i.now()
	// 秒级精度，与令牌中的 exp 保持一致
	expiresAt := NextRefreshBoundary(now, i.refreshHour).Truncate(time.Second)

	claims := RefreshClaims{
		CNPJ:             cnpj,
		BaseInfo:         baseInfo,
		Use:              useRefresh,
		RegisteredClaims: i.registered(tenantID, now, expiresAt),
	}
	return i.sign(claims, expiresAt)
}

// VerifyAccess 校验访问令牌
func (i *Issuer) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Use != useAccess {
		return nil, ErrWrongTokenUse
	}
	return claims, nil
}

// VerifyRefresh 校验刷新令牌
func (i *Issuer) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Use != useRefresh {
		return nil, ErrWrongTokenUse
	}
	return claims, nil
}

func (i *Issuer) registered(subject string, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    i.issuer,
		Audience:  jwt.ClaimStrings{i.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (i *Issuer) sign(claims jwt.Claims, expiresAt time.Time) (SignedToken, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return SignedToken{}, fmt.Errorf("签名token失败: %w", err)
	}
	return SignedToken{Token: signed, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}

func (i *Issuer) parse(tokenString string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	return err
}
