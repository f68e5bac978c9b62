package relay

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/steampunk99/Hermes/internal/chain"
	"github.com/steampunk99/Hermes/internal/config"
	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
)

// Accountant 把中继的真实gas开销折算成内部币种，从用户的
// gas额度里扣减。扣减与流水追加由GasLogic在一个事务内完成。
type Accountant struct {
	manager  *chain.Manager
	gasLogic *logic.GasLogic
	rate     float64 // 原生币到内部币种的换算汇率
}

// NewAccountant 创建gas账务
func NewAccountant(manager *chain.Manager, gasLogic *logic.GasLogic, cfg config.RelayConfig) *Accountant {
	return &Accountant{
		manager:  manager,
		gasLogic: gasLogic,
		rate:     cfg.GasTokenRate,
	}
}

// Debit 按回执扣减用户gas额度。回执缺少有效gas价格时
// 退回到链上建议价格估算。
func (a *Accountant) Debit(ctx context.Context, userId int64, receipt *types.Receipt, note string) (float64, error) {
	gasPrice := receipt.EffectiveGasPrice
	if gasPrice == nil || gasPrice.Sign() == 0 {
		suggested, err := a.manager.SuggestGasPrice(ctx)
		if err != nil {
			return 0, err
		}
		gasPrice = suggested
	}

	costWei := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice)
	native, _ := new(big.Float).Quo(new(big.Float).SetInt(costWei), big.NewFloat(1e18)).Float64()
	cost := native * a.rate

	debited, err := a.gasLogic.Debit(userId, cost, note)
	if err != nil {
		return 0, err
	}

	logger.Info("Debited %f gas credit from user %d (gas used %d, tx %s)",
		debited, userId, receipt.GasUsed, receipt.TxHash.Hex())
	return debited, nil
}
