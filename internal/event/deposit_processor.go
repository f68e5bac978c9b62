package event

import (
	"gorm.io/gorm"

	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
)

// DepositProcessor 铸币事件处理器：后台在链下支付确认后铸币，给用户入账
type DepositProcessor struct {
	ledgerLogic *logic.LedgerLogic
}

// NewDepositProcessor 创建铸币事件处理器
func NewDepositProcessor(ledgerLogic *logic.LedgerLogic) *DepositProcessor {
	return &DepositProcessor{
		ledgerLogic: ledgerLogic,
	}
}

// Process 处理铸币事件
func (p *DepositProcessor) Process(tx *gorm.DB, ev *model.ChainEvent) error {
	to := ev.AddressArg("to")
	amount := ev.AmountArg("amount")

	user, err := p.ledgerLogic.GetUserByWallet(tx, to)
	if err != nil {
		return err
	}
	if user == nil {
		logger.Warn("Mint to unknown wallet %s (tx %s), no ledger account to credit", to, ev.TxHash)
		return nil
	}

	if err := p.ledgerLogic.CreditDeposit(tx, user, amount, ev.TxHash, "deposit confirmed"); err != nil {
		return err
	}

	logger.Info("Credited %f to user %d from mint (tx %s)", amount, user.Id, ev.TxHash)
	return nil
}
