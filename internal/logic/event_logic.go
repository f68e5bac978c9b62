package logic

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/steampunk99/Hermes/internal/model"
)

// EventLogic 事件账本操作。幂等性由 (tx_hash, log_index) 唯一约束
// 加条件更新保证，不依赖进程内锁。
type EventLogic struct {
	db *gorm.DB
}

// NewEventLogic 创建事件业务逻辑
func NewEventLogic(db *gorm.DB) *EventLogic {
	return &EventLogic{db: db}
}

// EnsureState 为受监控合约初始化对账游标（不存在时创建）
func (e *EventLogic) EnsureState(contractName, contractAddress string, deployBlock int64) error {
	state := model.EventStateModel{
		ContractAddress:    contractAddress,
		ContractName:       contractName,
		LastProcessedBlock: deployBlock,
	}
	err := e.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract_address"}},
		DoNothing: true,
	}).Create(&state).Error
	if err != nil {
		return fmt.Errorf("初始化对账游标失败: %w", err)
	}
	return nil
}

// GetState 获取合约的对账游标
func (e *EventLogic) GetState(contractAddress string) (*model.EventStateModel, error) {
	var state model.EventStateModel
	if err := e.db.Where("contract_address = ?", contractAddress).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("对账游标不存在")
		}
		return nil, fmt.Errorf("获取对账游标失败: %w", err)
	}
	return &state, nil
}

// InsertIfAbsent 插入事件记录，已存在时静默跳过（两条投递路径竞争时先到者胜出）
func (e *EventLogic) InsertIfAbsent(tx *gorm.DB, event *model.EventModel) error {
	if err := e.validateEvent(event); err != nil {
		return err
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}, {Name: "log_index"}},
		DoNothing: true,
	}).Create(event).Error
	if err != nil {
		return fmt.Errorf("创建事件记录失败: %w", err)
	}
	return nil
}

// MarkProcessed 条件更新 processed=false -> true。
// 返回false表示另一条路径已经处理过该事件。
func (e *EventLogic) MarkProcessed(tx *gorm.DB, txHash string, logIndex int64) (bool, error) {
	now := time.Now()
	result := tx.Model(&model.EventModel{}).
		Where("tx_hash = ? AND log_index = ? AND processed = ?", txHash, logIndex, false).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": &now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("更新事件处理状态失败: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// AdvanceCheckpoint 单调推进对账游标，落后的写入不会回退游标
func (e *EventLogic) AdvanceCheckpoint(tx *gorm.DB, contractAddress string, blockNum int64) error {
	err := tx.Model(&model.EventStateModel{}).
		Where("contract_address = ? AND last_processed_block < ?", contractAddress, blockNum).
		Update("last_processed_block", blockNum).Error
	if err != nil {
		return fmt.Errorf("推进对账游标失败: %w", err)
	}
	return nil
}

// CheckEventExists 检查事件是否已存在
func (e *EventLogic) CheckEventExists(txHash string, logIndex int64) (bool, error) {
	var count int64
	err := e.db.Model(&model.EventModel{}).
		Where("tx_hash = ? AND log_index = ?", txHash, logIndex).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("检查事件是否存在失败: %w", err)
	}
	return count > 0, nil
}

// GetEvent 根据唯一键获取事件
func (e *EventLogic) GetEvent(txHash string, logIndex int64) (*model.EventModel, error) {
	var event model.EventModel
	if err := e.db.Where("tx_hash = ? AND log_index = ?", txHash, logIndex).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("事件不存在")
		}
		return nil, fmt.Errorf("获取事件失败: %w", err)
	}
	return &event, nil
}

// Advance 在调度事务之外推进游标（扫描完无事件的区块段时使用）
func (e *EventLogic) Advance(contractAddress string, blockNum int64) error {
	return e.AdvanceCheckpoint(e.db, contractAddress, blockNum)
}

// validateEvent 验证事件数据
func (e *EventLogic) validateEvent(event *model.EventModel) error {
	if event.ContractAddress == "" {
		return errors.New("合约地址不能为空")
	}
	if event.ContractName == "" {
		return errors.New("合约名称不能为空")
	}
	if event.EventName == "" {
		return errors.New("事件名称不能为空")
	}
	if event.TxHash == "" {
		return errors.New("交易哈希不能为空")
	}
	if event.BlockNum == 0 {
		return errors.New("区块号不能为空")
	}
	return nil
}
