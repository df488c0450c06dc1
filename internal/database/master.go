package database

import (
	"fmt"
	"time"

	"tecnodash/pkg/config"
	"tecnodash/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Initialize 连接主库
func Initialize(cfg *config.Config) error {
	db, err := Open(cfg.Database.MasterURL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Server.Mode == "debug")
	if err != nil {
		return err
	}
	DB = db
	logger.GetLogger().Info("Master database connected")
	return nil
}

// Open 按连接串打开一个gorm连接池，主库和租户库共用
func Open(dsn string, maxOpen, maxIdle int, verbose bool) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if verbose {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取连接池失败: %w", err)
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// GetDB 获取主库连接
func GetDB() *gorm.DB {
	return DB
}

// Close 关闭主库连接
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
