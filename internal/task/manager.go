package task

import (
	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"github.com/steampunk99/Hermes/internal/chain"
	"github.com/steampunk99/Hermes/internal/config"
	"github.com/steampunk99/Hermes/internal/event"
	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/payout"
	"github.com/steampunk99/Hermes/internal/relay"
)

// Job 后台任务
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

// Manager 任务管理器
type Manager struct {
	scheduler    gocron.Scheduler
	db           *gorm.DB
	chainManager *chain.Manager
	scanner      *event.Scanner
	payoutClient *payout.Client
	config       *config.Config
}

// NewManager 创建新的任务管理器
func NewManager(db *gorm.DB, chainManager *chain.Manager, scanner *event.Scanner, payoutClient *payout.Client, cfg *config.Config) *Manager {
	s, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("Failed to create scheduler: %v", err)
	}

	return &Manager{
		scheduler:    s,
		db:           db,
		chainManager: chainManager,
		scanner:      scanner,
		payoutClient: payoutClient,
		config:       cfg,
	}
}

// Start 启动任务管理器
func Start(db *gorm.DB, chainManager *chain.Manager, scanner *event.Scanner, payoutClient *payout.Client, cfg *config.Config) *Manager {
	manager := NewManager(db, chainManager, scanner, payoutClient, cfg)

	// 注册所有任务
	manager.RegisterJobs()

	// 启动调度器
	manager.scheduler.Start()

	logger.Info("Task manager started successfully")
	return manager
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() {
	gasLogic := logic.NewGasLogic(m.db)

	m.register(NewReconcileJob(m.scanner, m.config))
	m.register(NewPayoutJob(m.db, m.payoutClient, m.config))
	m.register(NewGasDripJob(m.db, gasLogic, m.config))
	m.register(NewGasDebitJob(m.chainManager,
		relay.NewAccountant(m.chainManager, gasLogic, m.config.Relay), gasLogic, m.config))
}

// register 注册单个任务，同一任务上轮未结束时不并发重入
func (m *Manager) register(job Job) {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
	}
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
