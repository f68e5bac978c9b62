package event

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
)

// Processor 单一事件类型的业务处理器，在调度器的事务内执行
type Processor interface {
	Process(tx *gorm.DB, ev *model.ChainEvent) error
}

// handlerKey 事件处理器的路由键
type handlerKey struct {
	Contract string
	Event    string
}

// Dispatcher 幂等闸门和路由器。订阅路径和扫描路径的事件都汇聚到这里：
// 同一 (tx_hash, log_index) 不论投递多少次，业务处理器恰好执行一次。
// 记录插入、标记已处理、业务变更、游标推进在同一个数据库事务内完成。
type Dispatcher struct {
	db         *gorm.DB
	eventLogic *logic.EventLogic
	handlers   map[handlerKey]Processor
	events     chan *model.ChainEvent
}

// NewDispatcher 创建事件调度器并注册所有处理器
func NewDispatcher(db *gorm.DB, ledgerLogic *logic.LedgerLogic) *Dispatcher {
	return &Dispatcher{
		db:         db,
		eventLogic: logic.NewEventLogic(db),
		handlers: map[handlerKey]Processor{
			{Contract: "swap", Event: "SwapConfirmed"}:  NewSwapProcessor(ledgerLogic),
			{Contract: "token", Event: "Minted"}:        NewDepositProcessor(ledgerLogic),
			{Contract: "token", Event: "Burned"}:        NewBurnProcessor(ledgerLogic),
			{Contract: "oracle", Event: "PriceUpdated"}: NewPriceProcessor(ledgerLogic),
		},
		events: make(chan *model.ChainEvent, 256),
	}
}

// Submit 异步投递事件（订阅路径使用）
func (d *Dispatcher) Submit(ev *model.ChainEvent) {
	d.events <- ev
}

// Run 消费投递通道，进程内唯一消费者
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Dispatcher stopped")
			return
		case ev := <-d.events:
			if err := d.Process(ev); err != nil {
				// 事务已回滚，事件仍可由下一轮对账扫描重试
				logger.Error("Error processing event %s (%s:%d): %v",
					ev.EventName, ev.TxHash, ev.LogIndex, err)
			}
		}
	}
}

// Process 同步处理单个事件（扫描路径直接调用）。
// 返回nil表示事件已生效或为重复投递；返回错误表示整个单元已回滚。
func (d *Dispatcher) Process(ev *model.ChainEvent) error {
	dataJSON, err := json.Marshal(ev.Args)
	if err != nil {
		return fmt.Errorf("failed to marshal event args: %w", err)
	}

	record := model.EventModel{
		ContractAddress: ev.ContractAddress,
		ContractName:    ev.ContractName,
		EventName:       ev.EventName,
		TxHash:          ev.TxHash,
		LogIndex:        ev.LogIndex,
		BlockNum:        ev.BlockNum,
		Data:            string(dataJSON),
	}

	duplicate := false
	err = d.db.Transaction(func(tx *gorm.DB) error {
		// 先到者胜出：唯一约束吸收两条路径的竞争
		if err := d.eventLogic.InsertIfAbsent(tx, &record); err != nil {
			return err
		}

		// 条件更新是真正的幂等判定，RowsAffected==0 说明已处理过
		accepted, err := d.eventLogic.MarkProcessed(tx, ev.TxHash, ev.LogIndex)
		if err != nil {
			return err
		}
		if !accepted {
			duplicate = true
			return nil
		}

		handler, ok := d.handlers[handlerKey{Contract: ev.ContractName, Event: ev.EventName}]
		if !ok {
			// 未注册的事件类型只记录，不重试
			logger.Warn("No handler for event %s on contract %s, marking processed",
				ev.EventName, ev.ContractName)
		} else if err := handler.Process(tx, ev); err != nil {
			return err
		}

		return d.eventLogic.AdvanceCheckpoint(tx, ev.ContractAddress, ev.BlockNum)
	})
	if err != nil {
		return err
	}

	if duplicate {
		logger.Debug("Duplicate delivery of event %s:%d, skipped", ev.TxHash, ev.LogIndex)
	} else {
		logger.Info("Processed event %s from contract %s at block %d",
			ev.EventName, ev.ContractName, ev.BlockNum)
	}
	return nil
}
