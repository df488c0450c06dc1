package services

import (
	"context"
	"fmt"
	"time"

	"tecnodash/internal/models"
	"tecnodash/pkg/logger"

	"github.com/robfig/cron/v3"
)

// SessionSweeper 每天在刷新令牌统一失效的整点关闭过期会话
type SessionSweeper struct {
	sessions SessionStore
	cron     *cron.Cron
	hour     int
	now      func() time.Time
	running  bool
}

// NewSessionSweeper 创建过期会话清理器
func NewSessionSweeper(sessions SessionStore, hour int) *SessionSweeper {
	return &SessionSweeper{
		sessions: sessions,
		cron:     cron.New(),
		hour:     hour,
		now:      time.Now,
	}
}

// Start 启动调度器
func (s *SessionSweeper) Start() error {
	if s.running {
		return fmt.Errorf("调度器已经在运行")
	}

	spec := fmt.Sprintf("0 %d * * *", s.hour)
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			logger.WithComponent("session_sweeper").Errorf("清理过期会话失败: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("添加会话清理任务失败: %v", err)
	}

	s.cron.Start()
	s.running = true
	logger.WithComponent("session_sweeper").Infof("会话清理调度器启动成功，每天 %02d:00 执行", s.hour)
	return nil
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *SessionSweeper) Stop() {
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	logger.WithComponent("session_sweeper").Info("会话清理调度器已停止")
}

// Sweep 立即执行一次清理
func (s *SessionSweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.sessions.ExpireSessions(ctx, s.now(), models.ReasonExpired)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.WithComponent("session_sweeper").Infof("已关闭 %d 个过期会话", n)
	}
	return n, nil
}
