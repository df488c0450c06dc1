package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"tecnodash/pkg/config"
	apperrors "tecnodash/pkg/errors"
	"tecnodash/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// SchemaMigrator 对新建的租户库执行表结构迁移，成功时返回工具输出
type SchemaMigrator interface {
	Migrate(ctx context.Context, connString string) (string, error)
}

// NewSchemaMigrator 按 MIGRATION_MODE 选择实现
func NewSchemaMigrator(cfg config.MigrationConfig) SchemaMigrator {
	if cfg.Mode == config.MigrationModeEmbedded {
		return NewEmbeddedMigrator(cfg.SourceURL)
	}
	return NewCommandMigrator(cfg.Script, cfg.EnvVar)
}

// CommandMigrator 通过 sh -c 调用外部迁移工具，连接串经环境变量传入
type CommandMigrator struct {
	script string
	envVar string
}

// NewCommandMigrator 创建外部命令迁移器
func NewCommandMigrator(script, envVar string) *CommandMigrator {
	if envVar == "" {
		envVar = "TENANT_DATABASE_URL"
	}
	return &CommandMigrator{script: script, envVar: envVar}
}

func (m *CommandMigrator) Migrate(ctx context.Context, connString string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", m.script)
	cmd.Env = append(os.Environ(), m.envVar+"="+connString)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logger.GetLogger().WithFields(logrus.Fields{
			"stderr": strings.TrimSpace(stderr.String()),
			"stdout": strings.TrimSpace(stdout.String()),
		}).Errorf("租户库迁移命令执行失败: %v", err)
		return "", apperrors.Provisioning("租户库迁移失败", err)
	}

	return stdout.String(), nil
}

// EmbeddedMigrator 在进程内使用 golang-migrate 执行迁移文件
type EmbeddedMigrator struct {
	sourceURL string
}

// NewEmbeddedMigrator 创建进程内迁移器，sourceURL 形如 file://migrations/tenant
func NewEmbeddedMigrator(sourceURL string) *EmbeddedMigrator {
	return &EmbeddedMigrator{sourceURL: sourceURL}
}

func (m *EmbeddedMigrator) Migrate(ctx context.Context, connString string) (string, error) {
	migrator, err := migrate.New(m.sourceURL, connString)
	if err != nil {
		return "", apperrors.Provisioning("初始化迁移器失败", err)
	}
	defer func() {
		srcErr, dbErr := migrator.Close()
		if srcErr != nil || dbErr != nil {
			logger.GetLogger().Errorf("关闭迁移器失败: source=%v database=%v", srcErr, dbErr)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			migrator.GracefulStop <- true
		case <-done:
		}
	}()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return "", apperrors.Provisioning("租户库迁移失败", err)
	}

	version, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return "", apperrors.Provisioning("读取迁移版本失败", err)
	}
	return fmt.Sprintf("schema version %d (dirty=%t)", version, dirty), nil
}
