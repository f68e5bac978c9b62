package task

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/steampunk99/Hermes/internal/config"
	"github.com/steampunk99/Hermes/internal/event"
	"github.com/steampunk99/Hermes/internal/logger"
)

// ReconcileJob 对账扫描任务。订阅断连或进程停机期间漏掉的事件
// 由本任务从持久化游标追回。
type ReconcileJob struct {
	scanner *event.Scanner
	config  *config.Config
}

// NewReconcileJob 创建对账扫描任务
func NewReconcileJob(scanner *event.Scanner, cfg *config.Config) *ReconcileJob {
	return &ReconcileJob{
		scanner: scanner,
		config:  cfg,
	}
}

// GetName 获取任务名称
func (j *ReconcileJob) GetName() string {
	return "event_reconciler"
}

// GetSchedule 获取调度配置
func (j *ReconcileJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.ScanInterval) * time.Second)
}

// Execute 执行任务
func (j *ReconcileJob) Execute() {
	logger.Debug("Starting reconciliation scan")

	// 单轮扫描不应超过两个调度周期
	ctx, cancel := context.WithTimeout(context.Background(),
		2*time.Duration(j.config.Task.ScanInterval)*time.Second)
	defer cancel()

	j.scanner.ScanAll(ctx)
}
