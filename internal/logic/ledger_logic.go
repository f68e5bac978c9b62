package logic

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/steampunk99/Hermes/internal/model"
)

// 汇率缓存的固定交易对
const RatePair = "UGX/USD"

// LedgerLogic 链下账本业务逻辑
type LedgerLogic struct {
	db *gorm.DB
}

// NewLedgerLogic 创建账本业务逻辑
func NewLedgerLogic(db *gorm.DB) *LedgerLogic {
	return &LedgerLogic{db: db}
}

// GetUserByWallet 根据钱包地址查找用户，未找到返回nil（不是错误：
// 链上事件可能来自本系统之外的地址）
func (l *LedgerLogic) GetUserByWallet(tx *gorm.DB, wallet string) (*model.UserModel, error) {
	var user model.UserModel
	err := tx.Where("wallet_address = ?", strings.ToLower(wallet)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查找用户失败: %w", err)
	}
	return &user, nil
}

// GetUserById 根据ID获取用户
func (l *LedgerLogic) GetUserById(id int64) (*model.UserModel, error) {
	var user model.UserModel
	if err := l.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("用户不存在")
		}
		return nil, fmt.Errorf("获取用户失败: %w", err)
	}
	return &user, nil
}

// CreditDeposit 入金：创建已完成的入金记录并增加用户余额
func (l *LedgerLogic) CreditDeposit(tx *gorm.DB, user *model.UserModel, amount float64, txHash, note string) error {
	if amount <= 0 {
		return errors.New("入金金额必须大于0")
	}

	record := model.TransactionModel{
		UserId: user.Id,
		Type:   model.TransactionTypeDeposit,
		Status: model.TransactionStatusCompleted,
		Amount: amount,
		TxHash: txHash,
		Note:   note,
	}
	if err := tx.Create(&record).Error; err != nil {
		return fmt.Errorf("创建入金记录失败: %w", err)
	}

	err := tx.Model(&model.UserModel{}).
		Where("id = ?", user.Id).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
	if err != nil {
		return fmt.Errorf("更新用户余额失败: %w", err)
	}

	return nil
}

// BurnOutcome 燃烧确认的处理结果
type BurnOutcome int

const (
	BurnApplied   BurnOutcome = iota // 找到待确认记录并完成
	BurnDuplicate                    // 该交易哈希已确认过，重复投递
	BurnUnmatched                    // 没有匹配的待确认记录
)

// ConfirmBurn 燃烧确认：找到该用户最早的、金额匹配且尚无交易哈希的
// 待确认提现/转出记录，回填交易哈希并标记完成；关联的出款任务转为
// 可发起状态。已有交易哈希的记录视为重复确认，跳过不重放。
func (l *LedgerLogic) ConfirmBurn(tx *gorm.DB, user *model.UserModel, amount float64, txHash string) (BurnOutcome, error) {
	// 重复确认检查：同一哈希只生效一次
	var dup int64
	err := tx.Model(&model.TransactionModel{}).
		Where("tx_hash = ? AND user_id = ?", txHash, user.Id).
		Count(&dup).Error
	if err != nil {
		return BurnUnmatched, fmt.Errorf("检查重复确认失败: %w", err)
	}
	if dup > 0 {
		return BurnDuplicate, nil
	}

	var record model.TransactionModel
	err = tx.Where("user_id = ? AND status = ? AND amount = ? AND (tx_hash IS NULL OR tx_hash = '')",
		user.Id, model.TransactionStatusPending, amount).
		Where("type IN ?", []model.TransactionType{model.TransactionTypeWithdraw, model.TransactionTypeSend}).
		Order("created_at ASC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return BurnUnmatched, nil
	}
	if err != nil {
		return BurnUnmatched, fmt.Errorf("查找待确认记录失败: %w", err)
	}

	updates := map[string]interface{}{
		"tx_hash": txHash,
		"status":  model.TransactionStatusCompleted,
	}
	if err := tx.Model(&record).Updates(updates).Error; err != nil {
		return BurnUnmatched, fmt.Errorf("更新提现记录失败: %w", err)
	}

	// 关联出款任务推进到可发起状态
	err = tx.Model(&model.PayoutJobModel{}).
		Where("transaction_id = ? AND status = ?", record.Id, model.PayoutStatusPending).
		Update("status", model.PayoutStatusReady).Error
	if err != nil {
		return BurnUnmatched, fmt.Errorf("更新出款任务失败: %w", err)
	}

	return BurnApplied, nil
}

// CreateWithdrawal 创建待确认的提现记录和出款任务
func (l *LedgerLogic) CreateWithdrawal(user *model.UserModel, amount float64, destination, reference string) (*model.TransactionModel, error) {
	if amount <= 0 {
		return nil, errors.New("提现金额必须大于0")
	}

	var record model.TransactionModel
	err := l.db.Transaction(func(tx *gorm.DB) error {
		// 余额校验和扣减在同一条带守卫的更新里完成，
		// 入参里的余额是过期读数，并发提现时不可信
		result := tx.Model(&model.UserModel{}).
			Where("id = ? AND balance >= ?", user.Id, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if result.Error != nil {
			return fmt.Errorf("更新用户余额失败: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errors.New("余额不足")
		}

		record = model.TransactionModel{
			UserId:    user.Id,
			Type:      model.TransactionTypeWithdraw,
			Status:    model.TransactionStatusPending,
			Amount:    amount,
			Reference: reference,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("创建提现记录失败: %w", err)
		}

		job := model.PayoutJobModel{
			TransactionId: record.Id,
			Amount:        amount,
			Destination:   destination,
			Status:        model.PayoutStatusPending,
			Reference:     reference,
		}
		if err := tx.Create(&job).Error; err != nil {
			return fmt.Errorf("创建出款任务失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListTransactions 分页获取用户交易记录，按创建时间倒序
func (l *LedgerLogic) ListTransactions(userId int64, page, pageSize int) ([]model.TransactionModel, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	var total int64
	query := l.db.Model(&model.TransactionModel{}).Where("user_id = ?", userId)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计交易记录失败: %w", err)
	}

	var records []model.TransactionModel
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("获取交易记录失败: %w", err)
	}
	return records, total, nil
}

// UpsertRate 刷新汇率缓存，纯缓存更新，不属于账本变更
func (l *LedgerLogic) UpsertRate(tx *gorm.DB, rate float64, updatedOn time.Time) error {
	record := model.ExchangeRateModel{
		Pair:      RatePair,
		Rate:      rate,
		UpdatedOn: updatedOn,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pair"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "updated_on"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("刷新汇率缓存失败: %w", err)
	}
	return nil
}

// GetRate 获取当前缓存汇率
func (l *LedgerLogic) GetRate() (*model.ExchangeRateModel, error) {
	var record model.ExchangeRateModel
	if err := l.db.Where("pair = ?", RatePair).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("汇率尚未同步")
		}
		return nil, fmt.Errorf("获取汇率失败: %w", err)
	}
	return &record, nil
}

// ConfirmPayout 出款服务回调确认：任务完结，关联交易保持完成状态
func (l *LedgerLogic) ConfirmPayout(reference string, success bool, detail string) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		var job model.PayoutJobModel
		if err := tx.Where("reference = ?", reference).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("出款任务不存在")
			}
			return fmt.Errorf("查找出款任务失败: %w", err)
		}

		if job.Status == model.PayoutStatusConfirmed {
			// 回调重复投递，幂等跳过
			return nil
		}

		status := model.PayoutStatusConfirmed
		if !success {
			status = model.PayoutStatusFailed
		}
		updates := map[string]interface{}{
			"status":     status,
			"last_error": detail,
		}
		if success {
			updates["last_error"] = ""
		}
		if err := tx.Model(&job).Updates(updates).Error; err != nil {
			return fmt.Errorf("更新出款任务失败: %w", err)
		}

		if !success {
			err := tx.Model(&model.TransactionModel{}).
				Where("id = ?", job.TransactionId).
				Update("status", model.TransactionStatusFailed).Error
			if err != nil {
				return fmt.Errorf("更新交易状态失败: %w", err)
			}
		}
		return nil
	})
}
