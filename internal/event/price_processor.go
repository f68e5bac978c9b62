package event

import (
	"math/big"
	"time"

	"gorm.io/gorm"

	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
)

// PriceProcessor 预言机汇率事件处理器，纯缓存刷新
type PriceProcessor struct {
	ledgerLogic *logic.LedgerLogic
}

// NewPriceProcessor 创建汇率事件处理器
func NewPriceProcessor(ledgerLogic *logic.LedgerLogic) *PriceProcessor {
	return &PriceProcessor{
		ledgerLogic: ledgerLogic,
	}
}

// Process 处理汇率更新事件
func (p *PriceProcessor) Process(tx *gorm.DB, ev *model.ChainEvent) error {
	rate := ev.AmountArg("rate")

	updatedOn := time.Now()
	if ts, ok := ev.Args["timestamp"].(*big.Int); ok && ts.IsInt64() {
		updatedOn = time.Unix(ts.Int64(), 0)
	}

	if err := p.ledgerLogic.UpsertRate(tx, rate, updatedOn); err != nil {
		return err
	}

	logger.Info("Refreshed exchange rate to %f (block %d)", rate, ev.BlockNum)
	return nil
}
