package logic

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/steampunk99/Hermes/internal/model"
)

// 乐观更新的重试上限
const maxCreditRetries = 3

// 补扣任务的失败上限，超过后终结等待人工处理
const maxDebitJobAttempts = 10

// GasLogic gas额度账务。额度扣减与流水追加必须在同一事务内，
// 只扣不记或只记不扣都是正确性缺陷。
type GasLogic struct {
	db *gorm.DB
}

// NewGasLogic 创建gas账务逻辑
func NewGasLogic(db *gorm.DB) *GasLogic {
	return &GasLogic{db: db}
}

// Debit 扣减用户gas额度并追加USE流水。额度下限为0，
// 实际扣减额即为流水金额（余额不足时只扣到0）。
func (g *GasLogic) Debit(userId int64, amount float64, note string) (float64, error) {
	if amount < 0 {
		return 0, errors.New("扣减金额不能为负")
	}

	var debited float64
	err := g.db.Transaction(func(tx *gorm.DB) error {
		// 条件更新带上读到的旧值做比较。READ COMMITTED下并发写入者
		// 会让比较落空，此时重读新值再试，绝不用过期读数覆盖别人的提交。
		for attempt := 0; attempt < maxCreditRetries; attempt++ {
			var user model.UserModel
			if err := tx.First(&user, userId).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errors.New("用户不存在")
				}
				return fmt.Errorf("获取用户失败: %w", err)
			}

			debited = amount
			if user.GasCredit < amount {
				debited = user.GasCredit
			}

			result := tx.Model(&model.UserModel{}).
				Where("id = ? AND gas_credit = ?", userId, user.GasCredit).
				Update("gas_credit", user.GasCredit-debited)
			if result.Error != nil {
				return fmt.Errorf("更新gas额度失败: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				continue
			}

			drip := model.GasDripModel{
				UserId: userId,
				Amount: debited,
				Type:   model.GasDripTypeUse,
				Note:   note,
			}
			if err := tx.Create(&drip).Error; err != nil {
				return fmt.Errorf("追加gas流水失败: %w", err)
			}
			return nil
		}
		return errors.New("gas额度并发更新冲突")
	})
	if err != nil {
		return 0, err
	}
	return debited, nil
}

// Drip 补贴用户gas额度，额度有上限，实际入账额即为流水金额
func (g *GasLogic) Drip(userId int64, amount, maxCredit float64, note string) (float64, error) {
	if amount <= 0 {
		return 0, errors.New("补贴金额必须大于0")
	}

	var added float64
	err := g.db.Transaction(func(tx *gorm.DB) error {
		for attempt := 0; attempt < maxCreditRetries; attempt++ {
			var user model.UserModel
			if err := tx.First(&user, userId).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errors.New("用户不存在")
				}
				return fmt.Errorf("获取用户失败: %w", err)
			}

			added = amount
			if user.GasCredit+amount > maxCredit {
				added = maxCredit - user.GasCredit
			}
			if added <= 0 {
				// 已到上限，不入账也不记流水
				added = 0
				return nil
			}

			result := tx.Model(&model.UserModel{}).
				Where("id = ? AND gas_credit = ?", userId, user.GasCredit).
				Update("gas_credit", user.GasCredit+added)
			if result.Error != nil {
				return fmt.Errorf("更新gas额度失败: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				continue
			}

			drip := model.GasDripModel{
				UserId: userId,
				Amount: added,
				Type:   model.GasDripTypeDrip,
				Note:   note,
			}
			if err := tx.Create(&drip).Error; err != nil {
				return fmt.Errorf("追加gas流水失败: %w", err)
			}
			return nil
		}
		return errors.New("gas额度并发更新冲突")
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// TotalUsed 用户累计消耗的gas额度（USE流水合计）
func (g *GasLogic) TotalUsed(userId int64) (float64, error) {
	var total float64
	err := g.db.Model(&model.GasDripModel{}).
		Where("user_id = ? AND type = ?", userId, model.GasDripTypeUse).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("统计gas消耗失败: %w", err)
	}
	return total, nil
}

// EnqueueDebit 登记一笔待补扣的gas债务。回执没拿到或扣账失败时
// 交易哈希已经返回给调用方，扣账义务不能随之丢失，由后台任务
// 拿着哈希补拉回执再扣。同一哈希只登记一次。
func (g *GasLogic) EnqueueDebit(userId int64, txHash, note string) error {
	job := model.GasDebitJobModel{
		UserId: userId,
		TxHash: txHash,
		Note:   note,
		Status: model.GasDebitStatusPending,
	}
	err := g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoNothing: true,
	}).Create(&job).Error
	if err != nil {
		return fmt.Errorf("登记gas补扣任务失败: %w", err)
	}
	return nil
}

// PendingDebits 获取待补扣的gas债务
func (g *GasLogic) PendingDebits() ([]model.GasDebitJobModel, error) {
	var jobs []model.GasDebitJobModel
	err := g.db.Where("status = ?", model.GasDebitStatusPending).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("获取gas补扣任务失败: %w", err)
	}
	return jobs, nil
}

// CompleteDebitJob 补扣完成，任务终结
func (g *GasLogic) CompleteDebitJob(id int64) error {
	err := g.db.Model(&model.GasDebitJobModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.GasDebitStatusDone,
			"last_error": "",
		}).Error
	if err != nil {
		return fmt.Errorf("更新gas补扣任务失败: %w", err)
	}
	return nil
}

// FailDebitJob 记录一次补扣失败，超过上限后任务终结
func (g *GasLogic) FailDebitJob(job *model.GasDebitJobModel, detail string) error {
	updates := map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": detail,
	}
	if job.Attempts+1 >= maxDebitJobAttempts {
		updates["status"] = model.GasDebitStatusFailed
	}
	err := g.db.Model(&model.GasDebitJobModel{}).
		Where("id = ?", job.Id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("更新gas补扣任务失败: %w", err)
	}
	return nil
}
