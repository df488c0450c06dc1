package database

import (
	"context"
	"database/sql"

	apperrors "tecnodash/pkg/errors"
	"tecnodash/pkg/logger"

	"github.com/lib/pq"
)

const terminateBackendsSQL = `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`

// Provisioner 在主库的管理连接上创建和删除租户数据库
type Provisioner struct {
	adminDSN string
	open     func(dsn string) (*sql.DB, error)
}

// NewProvisioner 创建数据库管理器
func NewProvisioner(adminDSN string) *Provisioner {
	return &Provisioner{
		adminDSN: adminDSN,
		open: func(dsn string) (*sql.DB, error) {
			return sql.Open("postgres", dsn)
		},
	}
}

// CreateDatabase 创建租户数据库，每次调用单独建立并关闭一条管理连接
func (p *Provisioner) CreateDatabase(ctx context.Context, name string) error {
	if err := ValidateDBName(name); err != nil {
		return apperrors.Provisioning("库名不合法", err)
	}

	return p.withAdminConn(func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name)); err != nil {
			return apperrors.Provisioning("创建租户数据库失败", err)
		}
		logger.GetLogger().WithField("database", name).Info("租户数据库已创建")
		return nil
	})
}

// DropDatabase 断开目标库的所有连接后删除，库不存在时不报错
func (p *Provisioner) DropDatabase(ctx context.Context, name string) error {
	if err := ValidateDBName(name); err != nil {
		return apperrors.Provisioning("库名不合法", err)
	}

	return p.withAdminConn(func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, terminateBackendsSQL, name); err != nil {
			return apperrors.Provisioning("断开租户数据库连接失败", err)
		}
		if _, err := db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(name)); err != nil {
			return apperrors.Provisioning("删除租户数据库失败", err)
		}
		logger.GetLogger().WithField("database", name).Warn("租户数据库已删除")
		return nil
	})
}

func (p *Provisioner) withAdminConn(fn func(db *sql.DB) error) (err error) {
	db, err := p.open(p.adminDSN)
	if err != nil {
		return apperrors.Provisioning("打开管理连接失败", err)
	}
	// DDL 不能在事务中执行，只保留一条连接
	db.SetMaxOpenConns(1)
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.GetLogger().Errorf("关闭管理连接失败: %v", closeErr)
			if err == nil {
				err = apperrors.Provisioning("关闭管理连接失败", closeErr)
			}
		}
	}()

	return fn(db)
}
