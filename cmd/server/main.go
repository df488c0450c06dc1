package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tecnodash/internal/database"
	"tecnodash/internal/handlers"
	"tecnodash/internal/router"
	"tecnodash/internal/services"
	"tecnodash/pkg/cnpj"
	"tecnodash/pkg/config"
	"tecnodash/pkg/jwt"
	"tecnodash/pkg/logger"
	"tecnodash/pkg/mailer"

	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger := logger.GetLogger()
	appLogger.Infof("Starting tecnodash (%s)...", cfg.Ambient)

	// 初始化主库
	if err := database.Initialize(cfg); err != nil {
		appLogger.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			appLogger.Error("Failed to close database:", err)
		}
		if err := database.CloseCache(); err != nil {
			appLogger.Error("Failed to close Redis:", err)
		}
	}()

	if err := database.Migrate(); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	store := database.GetCache()
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		appLogger.Warnf("Redis not reachable at startup: %v", err)
	}
	cancel()

	gin.SetMode(cfg.Server.Mode)

	masterStore := services.NewGormMasterStore(database.GetDB())
	tenantClients := database.NewTenantClients(cfg.Database, cfg.Server.Mode == gin.DebugMode)
	defer func() {
		if err := tenantClients.Shutdown(); err != nil {
			appLogger.Errorf("Failed to close tenant databases: %v", err)
		}
	}()

	signupService := services.NewSignupService(services.SignupDeps{
		Tenants:     masterStore,
		Cache:       store,
		Registry:    cnpj.NewClient(cfg.Registry.BaseURL, cfg.Registry.Timeout, cfg.Registry.RetryCount),
		Mailer:      mailer.NewSMTPMailer(cfg.SMTP),
		Provisioner: database.NewProvisioner(cfg.Database.MasterURL),
		Migrator:    database.NewSchemaMigrator(cfg.Migration),
		Database:    cfg.Database,
		Signup:      cfg.Signup,
	})
	authService := services.NewAuthService(masterStore, masterStore, store, jwt.NewIssuer(cfg.JWT))

	// 过期会话清理
	sweeper := services.NewSessionSweeper(masterStore, cfg.JWT.RefreshHour)
	if err := sweeper.Start(); err != nil {
		appLogger.Errorf("Failed to start session sweeper: %v", err)
	}
	defer sweeper.Stop()

	r := router.SetupRouter(router.Dependencies{
		Config:  cfg,
		Signup:  signupService,
		Auth:    authService,
		Tenants: tenantClients,
		Health: map[string]handlers.Pinger{
			"database": handlers.PingFunc(func(ctx context.Context) error {
				sqlDB, err := database.GetDB().DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			}),
			"cache": store,
		},
	})

	// 注册进度推送是长连接，不设置写超时
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	appLogger.Infof("Server started on port %s", cfg.Server.Port)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown:", err)
	}
	// 租户连接和数据库在 defer 中关闭，须先等注册流程及补偿结束
	if err := signupService.Wait(ctx); err != nil {
		appLogger.Error("Signup runs still in flight at shutdown:", err)
	}
	appLogger.Info("Server exited")
}
