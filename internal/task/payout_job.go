package task

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"github.com/steampunk99/Hermes/internal/config"
	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/model"
	"github.com/steampunk99/Hermes/internal/payout"
)

// 发起失败超过该次数后任务终结，等待人工处理
const maxPayoutAttempts = 5

// PayoutJob 出款发起任务。把燃烧已确认的出款任务提交给移动支付
// 服务；发起接口按reference幂等，重试不会重复出款。
type PayoutJob struct {
	db     *gorm.DB
	client *payout.Client
	config *config.Config
}

// NewPayoutJob 创建出款发起任务
func NewPayoutJob(db *gorm.DB, client *payout.Client, cfg *config.Config) *PayoutJob {
	return &PayoutJob{
		db:     db,
		client: client,
		config: cfg,
	}
}

// GetName 获取任务名称
func (j *PayoutJob) GetName() string {
	return "payout_initiator"
}

// GetSchedule 获取调度配置
func (j *PayoutJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.PayoutInterval) * time.Second)
}

// Execute 执行任务
func (j *PayoutJob) Execute() {
	var jobs []model.PayoutJobModel
	err := j.db.Where("status = ?", model.PayoutStatusReady).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		logger.Error("Failed to fetch ready payout jobs: %v", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	ctx := context.Background()
	initiated := 0

	for _, job := range jobs {
		_, err := j.client.InitiateWithdrawal(ctx, job.Amount, job.Destination, job.Reference)
		if err != nil {
			j.recordFailure(&job, err)
			continue
		}

		updates := map[string]interface{}{
			"status":     model.PayoutStatusInitiated,
			"last_error": "",
		}
		if err := j.db.Model(&job).Updates(updates).Error; err != nil {
			logger.Error("Failed to update payout job %s after initiation: %v", job.Reference, err)
			continue
		}

		logger.Info("Initiated payout %s (%.2f to %s)", job.Reference, job.Amount, job.Destination)
		initiated++
	}

	logger.Info("Payout task completed. Initiated %d of %d jobs", initiated, len(jobs))
}

// recordFailure 累计失败次数，超限后任务终结并回写关联交易
func (j *PayoutJob) recordFailure(job *model.PayoutJobModel, cause error) {
	logger.Warn("Failed to initiate payout %s (attempt %d): %v", job.Reference, job.Attempts+1, cause)

	updates := map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": cause.Error(),
	}
	if job.Attempts+1 >= maxPayoutAttempts {
		updates["status"] = model.PayoutStatusFailed
		logger.Error("Payout %s exceeded %d attempts, marked failed", job.Reference, maxPayoutAttempts)

		err := j.db.Model(&model.TransactionModel{}).
			Where("id = ?", job.TransactionId).
			Update("status", model.TransactionStatusFailed).Error
		if err != nil {
			logger.Error("Failed to update transaction %d for failed payout: %v", job.TransactionId, err)
		}
	}

	if err := j.db.Model(job).Updates(updates).Error; err != nil {
		logger.Error("Failed to record payout failure for %s: %v", job.Reference, err)
	}
}
