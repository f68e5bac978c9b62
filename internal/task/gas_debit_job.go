package task

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-co-op/gocron/v2"

	"github.com/steampunk99/Hermes/internal/chain"
	"github.com/steampunk99/Hermes/internal/config"
	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/relay"
)

// GasDebitJob gas债务补扣任务。中继返回了交易哈希但没拿到回执
// （或扣账失败）的请求会留下一条待补扣记录，这里拿哈希补拉
// 回执，按真实gas开销补扣用户额度。
type GasDebitJob struct {
	manager    *chain.Manager
	accountant *relay.Accountant
	gasLogic   *logic.GasLogic
	config     *config.Config
}

// NewGasDebitJob 创建gas补扣任务
func NewGasDebitJob(manager *chain.Manager, accountant *relay.Accountant, gasLogic *logic.GasLogic, cfg *config.Config) *GasDebitJob {
	return &GasDebitJob{
		manager:    manager,
		accountant: accountant,
		gasLogic:   gasLogic,
		config:     cfg,
	}
}

// GetName 获取任务名称
func (j *GasDebitJob) GetName() string {
	return "gas_debit_reconciler"
}

// GetSchedule 获取调度配置
func (j *GasDebitJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.PayoutInterval) * time.Second)
}

// Execute 执行任务
func (j *GasDebitJob) Execute() {
	jobs, err := j.gasLogic.PendingDebits()
	if err != nil {
		logger.Error("Failed to fetch pending gas debits: %v", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	ctx := context.Background()
	settled := 0

	for _, job := range jobs {
		receipt, err := j.manager.GetClient().TransactionReceipt(ctx, common.HexToHash(job.TxHash))
		if err != nil || receipt == nil {
			// 尚未打包或节点暂时查不到，计一次失败后下轮再试
			if ferr := j.gasLogic.FailDebitJob(&job, "receipt not available"); ferr != nil {
				logger.Error("Failed to record gas debit attempt for tx %s: %v", job.TxHash, ferr)
			}
			continue
		}

		if _, err := j.accountant.Debit(ctx, job.UserId, receipt, job.Note); err != nil {
			logger.Error("Failed to settle gas debit for tx %s: %v", job.TxHash, err)
			if ferr := j.gasLogic.FailDebitJob(&job, err.Error()); ferr != nil {
				logger.Error("Failed to record gas debit attempt for tx %s: %v", job.TxHash, ferr)
			}
			continue
		}

		if err := j.gasLogic.CompleteDebitJob(job.Id); err != nil {
			logger.Error("Failed to close gas debit job for tx %s: %v", job.TxHash, err)
			continue
		}
		settled++
	}

	logger.Info("Gas debit task completed. Settled %d of %d pending debits", settled, len(jobs))
}
