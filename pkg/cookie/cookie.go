package cookie

import (
	"net/http"
	"strings"
	"time"

	"tecnodash/pkg/config"

	"github.com/gin-gonic/gin"
)

// Cookie名称
const (
	VerifyEmail = "verificar_email"
	Session     = "sess_id"
)

// Jar 按运行环境的Cookie参数写入和清除Cookie
type Jar struct {
	cfg config.CookieConfig
}

func NewJar(cfg config.CookieConfig) *Jar {
	return &Jar{cfg: cfg}
}

// ParseSameSite 解析 lax / strict / none，无法识别时按 none 处理
func ParseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	default:
		return http.SameSiteNoneMode
	}
}

// Set 写入Cookie，maxAge 向下取整到秒
func (j *Jar) Set(c *gin.Context, name, value string, maxAge time.Duration) {
	j.write(c, name, value, int(maxAge/time.Second))
}

// Clear 以相同的 path/domain 让浏览器删除Cookie
func (j *Jar) Clear(c *gin.Context, name string) {
	j.write(c, name, "", -1)
}

func (j *Jar) write(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(ParseSameSite(j.cfg.SameSite))
	c.SetCookie(name, value, maxAge, j.cfg.Path, j.cfg.Domain, j.cfg.Secure, j.cfg.HTTPOnly)
}
