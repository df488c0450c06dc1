package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"tecnodash/pkg/config"
	apperrors "tecnodash/pkg/errors"
	"tecnodash/pkg/logger"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"
)

var ErrClientsClosed = errors.New("租户连接缓存已关闭")

// TenantConn 单个租户库的连接
type TenantConn struct {
	Name   string
	DB     *gorm.DB
	closer io.Closer
}

// Close 断开租户库连接
func (c *TenantConn) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// TenantOpener 按库名和连接串建立租户连接
type TenantOpener func(ctx context.Context, dbName, dsn string) (*TenantConn, error)

type clientEntry struct {
	once sync.Once
	conn *TenantConn
	err  error
}

// TenantClients 按租户库名缓存连接，同一库名只建立一次，进程退出时统一释放
type TenantClients struct {
	template    string
	placeholder string
	token       string
	open        TenantOpener

	mu      sync.Mutex
	entries map[string]*clientEntry
	closed  bool
}

// NewTenantClients 创建租户连接缓存
func NewTenantClients(cfg config.DatabaseConfig, verbose bool) *TenantClients {
	return NewTenantClientsWithOpener(cfg, func(ctx context.Context, dbName, dsn string) (*TenantConn, error) {
		db, err := Open(dsn, cfg.MaxOpenConns, cfg.MaxIdleConns, verbose)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("租户库 %s 无法访问: %w", dbName, err)
		}
		return &TenantConn{Name: dbName, DB: db, closer: sqlDB}, nil
	})
}

// NewTenantClientsWithOpener 使用自定义的建连函数
func NewTenantClientsWithOpener(cfg config.DatabaseConfig, open TenantOpener) *TenantClients {
	return &TenantClients{
		template:    cfg.TenantURLTemplate,
		placeholder: cfg.TenantPlaceholder,
		token:       cfg.TenantNameToken,
		open:        open,
		entries:     make(map[string]*clientEntry),
	}
}

// Get 返回租户库连接，不存在时创建；并发请求同一租户只会建立一次
func (tc *TenantClients) Get(ctx context.Context, legalID, baseInfo string) (*TenantConn, error) {
	name := DeriveDBName(legalID, baseInfo, tc.token)
	if err := ValidateDBName(name); err != nil {
		return nil, apperrors.Internal("租户库名不合法", err)
	}

	tc.mu.Lock()
	if tc.closed {
		tc.mu.Unlock()
		return nil, apperrors.Internal("获取租户连接失败", ErrClientsClosed)
	}
	entry, ok := tc.entries[name]
	if !ok {
		entry = &clientEntry{}
		tc.entries[name] = entry
	}
	tc.mu.Unlock()

	entry.once.Do(func() {
		dsn, err := DeriveConnectionString(name, tc.template, tc.placeholder)
		if err != nil {
			entry.err = err
			return
		}
		entry.conn, entry.err = tc.open(ctx, name, dsn)
		if entry.err == nil {
			logger.GetLogger().WithField("database", name).Info("租户库连接已建立")
		}
	})

	if entry.err != nil {
		// 失败的连接不缓存，下次请求重新建立
		tc.mu.Lock()
		if tc.entries[name] == entry {
			delete(tc.entries, name)
		}
		tc.mu.Unlock()
		return nil, apperrors.Internal("获取租户连接失败", entry.err)
	}
	return entry.conn, nil
}

// Len 当前缓存的连接数
func (tc *TenantClients) Len() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.entries)
}

// Shutdown 断开全部租户连接并清空缓存，单个失败不影响其余连接
func (tc *TenantClients) Shutdown() error {
	tc.mu.Lock()
	entries := tc.entries
	tc.entries = make(map[string]*clientEntry)
	tc.closed = true
	tc.mu.Unlock()

	var result *multierror.Error
	for name, entry := range entries {
		// 等待正在建立的连接完成
		entry.once.Do(func() {
			entry.err = ErrClientsClosed
		})
		if entry.conn == nil {
			continue
		}
		if err := entry.conn.Close(); err != nil {
			logger.GetLogger().WithField("database", name).Errorf("断开租户库连接失败: %v", err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}
