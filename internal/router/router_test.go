package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tecnodash/internal/database"
	"tecnodash/internal/handlers"
	"tecnodash/internal/services"
	"tecnodash/pkg/config"
	"tecnodash/pkg/cookie"
	apperrors "tecnodash/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type noopSignup struct{}

func (noopSignup) PreSignup(ctx context.Context, input services.PreSignupInput) (*services.PreSignupResult, error) {
	return nil, apperrors.Conflict("Empresa já cadastrada.")
}

func (noopSignup) StartCompletion(ctx context.Context, cookieValue, code string) *services.SignupStream {
	return services.RunSignupStream(ctx, func(ctx context.Context, emit services.EventSink) error { return nil })
}

type deniedAuth struct{}

func (deniedAuth) Login(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
	return nil, apperrors.Unauthorized("Usuário ou senha incorretos")
}

func (deniedAuth) Logout(ctx context.Context, sessionID string) {}

func (deniedAuth) VerifyLoggedIn(ctx context.Context, sessionID string) (*services.Identity, error) {
	return nil, apperrors.Unauthorized("Sessão expirada. Faça login novamente.")
}

type noTenants struct{}

func (noTenants) Get(ctx context.Context, legalID, baseInfo string) (*database.TenantConn, error) {
	return nil, apperrors.Internal("unreachable", nil)
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRouter(Dependencies{
		Config: &config.Config{
			Cookie: config.CookieConfig{Path: "/", SameSite: "lax"},
			CORS:   config.CORSConfig{AllowOrigins: []string{"http://localhost:3000"}, AllowMethods: []string{"GET", "POST"}},
		},
		Signup:  noopSignup{},
		Auth:    deniedAuth{},
		Tenants: noTenants{},
		Health:  map[string]handlers.Pinger{},
	})
}

func TestRouter_SignupCompletionRequiresCookie(t *testing.T) {
	r := newTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/master/finalizar_cadastro?codigo=123456", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Cookie de sessão não encontrado")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/master/finalizar_cadastro/ws", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_MeRequiresSession(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Session, Value: "sess-1"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Contains(t, w.Body.String(), "pong")
}
