package router

import (
	"tecnodash/internal/handlers"
	"tecnodash/internal/middleware"
	"tecnodash/pkg/config"
	"tecnodash/pkg/cookie"

	"github.com/gin-gonic/gin"
)

// Dependencies 路由所需的服务
type Dependencies struct {
	Config  *config.Config
	Signup  handlers.SignupFlow
	Auth    handlers.Authenticator
	Tenants middleware.TenantResolver
	Health  map[string]handlers.Pinger
}

// SetupRouter 设置路由
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()

	// 中间件
	router.Use(middleware.RequestLogger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.SetupCORS(deps.Config.CORS))

	registerRoutes(router, deps)
	return router
}

// 注册所有路由
func registerRoutes(router *gin.Engine, deps Dependencies) {
	jar := cookie.NewJar(deps.Config.Cookie)
	session := middleware.NewSessionMiddleware(deps.Auth, deps.Tenants, jar)

	healthHandler := handlers.NewHealthHandler(deps.Health)
	router.GET("/health", healthHandler.Health)
	router.GET("/ping", handlers.Ping)

	// 租户注册
	signupHandler := handlers.NewSignupHandler(deps.Signup, jar, deps.Config.CORS)
	master := router.Group("/master")
	{
		master.POST("/pre_cadastro", signupHandler.PreSignup)
		master.GET("/finalizar_cadastro", middleware.RequireCookie(cookie.VerifyEmail), signupHandler.CompleteSSE)
		master.GET("/finalizar_cadastro/ws", middleware.RequireCookie(cookie.VerifyEmail), signupHandler.CompleteWebSocket)
	}

	// 登录会话
	authHandler := handlers.NewAuthHandler(deps.Auth, jar)
	auth := router.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/verificar_usuario_logado", authHandler.VerifyLoggedIn)
		auth.GET("/me", session.RequireSession(), session.TenantScope(), authHandler.Me)
	}
}
