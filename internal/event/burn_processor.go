package event

import (
	"gorm.io/gorm"

	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
)

// BurnProcessor 燃烧事件处理器：提现燃烧确认后回填交易哈希，
// 推进关联的出款任务
type BurnProcessor struct {
	ledgerLogic *logic.LedgerLogic
}

// NewBurnProcessor 创建燃烧事件处理器
func NewBurnProcessor(ledgerLogic *logic.LedgerLogic) *BurnProcessor {
	return &BurnProcessor{
		ledgerLogic: ledgerLogic,
	}
}

// Process 处理燃烧确认事件
func (p *BurnProcessor) Process(tx *gorm.DB, ev *model.ChainEvent) error {
	from := ev.AddressArg("from")
	amount := ev.AmountArg("amount")

	user, err := p.ledgerLogic.GetUserByWallet(tx, from)
	if err != nil {
		return err
	}
	if user == nil {
		logger.Warn("Burn from unknown wallet %s (tx %s), nothing to confirm", from, ev.TxHash)
		return nil
	}

	outcome, err := p.ledgerLogic.ConfirmBurn(tx, user, amount, ev.TxHash)
	if err != nil {
		return err
	}

	switch outcome {
	case logic.BurnApplied:
		logger.Info("Confirmed burn of %f for user %d (tx %s)", amount, user.Id, ev.TxHash)
	case logic.BurnDuplicate:
		logger.Debug("Burn tx %s already confirmed for user %d, skipped", ev.TxHash, user.Id)
	case logic.BurnUnmatched:
		// 金额不匹配或我们没有发起过这笔燃烧。重放不能修复，
		// 标记已处理并告警，交给人工核对。
		logger.Warn("Burn of %f from user %d has no matching pending record (tx %s)",
			amount, user.Id, ev.TxHash)
	}

	return nil
}
