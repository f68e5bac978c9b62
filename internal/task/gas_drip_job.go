package task

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"github.com/steampunk99/Hermes/internal/config"
	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
)

// GasDripJob gas额度补贴任务。周期性把额度低于上限的托管用户
// 补到配置的上限，补贴和消耗一样走流水。
type GasDripJob struct {
	db       *gorm.DB
	gasLogic *logic.GasLogic
	config   *config.Config
}

// NewGasDripJob 创建gas补贴任务
func NewGasDripJob(db *gorm.DB, gasLogic *logic.GasLogic, cfg *config.Config) *GasDripJob {
	return &GasDripJob{
		db:       db,
		gasLogic: gasLogic,
		config:   cfg,
	}
}

// GetName 获取任务名称
func (j *GasDripJob) GetName() string {
	return "gas_drip"
}

// GetSchedule 获取调度配置
func (j *GasDripJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.DripInterval) * time.Second)
}

// Execute 执行任务
func (j *GasDripJob) Execute() {
	maxCredit := j.config.Relay.MaxGasCredit
	dripAmount := j.config.Relay.DripAmount

	var users []model.UserModel
	err := j.db.Where("gas_credit < ?", maxCredit).Find(&users).Error
	if err != nil {
		logger.Error("Failed to fetch users for gas drip: %v", err)
		return
	}

	dripped := 0
	for _, user := range users {
		added, err := j.gasLogic.Drip(user.Id, dripAmount, maxCredit, "periodic gas drip")
		if err != nil {
			logger.Error("Failed to drip gas for user %d: %v", user.Id, err)
			continue
		}
		if added > 0 {
			dripped++
		}
	}

	if dripped > 0 {
		logger.Info("Gas drip task completed. Topped up %d users", dripped)
	}
}
