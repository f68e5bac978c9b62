package event

import (
	"gorm.io/gorm"

	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
)

// SwapProcessor swap确认事件处理器：外部资金换入并铸币，给用户入账
type SwapProcessor struct {
	ledgerLogic *logic.LedgerLogic
}

// NewSwapProcessor 创建swap事件处理器
func NewSwapProcessor(ledgerLogic *logic.LedgerLogic) *SwapProcessor {
	return &SwapProcessor{
		ledgerLogic: ledgerLogic,
	}
}

// Process 处理swap确认事件
func (p *SwapProcessor) Process(tx *gorm.DB, ev *model.ChainEvent) error {
	buyer := ev.AddressArg("buyer")
	amount := ev.AmountArg("amountOut")

	user, err := p.ledgerLogic.GetUserByWallet(tx, buyer)
	if err != nil {
		return err
	}
	if user == nil {
		// 高级用户可能绕过中继直接和合约交互，链下没有对应账户。
		// 重放无济于事，记录后仍然标记已处理。
		logger.Warn("Swap from unknown wallet %s (tx %s), no ledger account to credit", buyer, ev.TxHash)
		return nil
	}

	if err := p.ledgerLogic.CreditDeposit(tx, user, amount, ev.TxHash, "swap confirmed"); err != nil {
		return err
	}

	logger.Info("Credited %f to user %d from swap (tx %s)", amount, user.Id, ev.TxHash)
	return nil
}
