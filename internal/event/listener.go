package event

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/steampunk99/Hermes/internal/chain"
	"github.com/steampunk99/Hermes/internal/logger"
)

// 订阅断开后的重连等待
const reconnectBackoff = 5 * time.Second

// Listener 实时事件订阅。每个受监控合约维护一条推送订阅，
// 传输层断开后丢弃订阅、等待固定退避后重建。
// 漏掉的事件由对账扫描兜底，这里不追求不丢。
type Listener struct {
	manager    *chain.Manager
	dispatcher *Dispatcher
}

// NewListener 创建订阅监听器
func NewListener(manager *chain.Manager, dispatcher *Dispatcher) *Listener {
	return &Listener{
		manager:    manager,
		dispatcher: dispatcher,
	}
}

// Start 为每个受监控合约启动独立的订阅循环
func (l *Listener) Start(ctx context.Context) {
	if !l.manager.HasSubscription() {
		logger.Warn("Websocket client not configured, live subscription disabled")
		return
	}

	contracts := l.manager.GetMonitoredContracts()
	for _, contract := range contracts {
		go l.watch(ctx, contract)
	}
	logger.Info("Started live subscriptions for %d contracts", len(contracts))
}

// watch 单个合约的订阅循环: Disconnected -> Subscribing -> Subscribed -> (event|Disconnected)
func (l *Listener) watch(ctx context.Context, contract *chain.Contract) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		logsCh := make(chan types.Log, 64)
		sub, err := l.manager.SubscribeLogs(ctx, contract, logsCh)
		if err != nil {
			logger.Error("Failed to subscribe to contract %s: %v, retrying in %s",
				contract.GetName(), err, reconnectBackoff)
			if !l.sleep(ctx) {
				return
			}
			continue
		}

		logger.Info("Subscribed to events of contract %s", contract.GetName())
		l.consume(ctx, contract, sub.Err(), logsCh)
		sub.Unsubscribe()

		if !l.sleep(ctx) {
			return
		}
	}
}

// consume 消费订阅推送，订阅出错或上下文取消时返回
func (l *Listener) consume(ctx context.Context, contract *chain.Contract, errCh <-chan error, logsCh <-chan types.Log) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			logger.Warn("Subscription for contract %s closed: %v", contract.GetName(), err)
			return
		case lg := <-logsCh:
			l.handleLog(contract, lg)
		}
	}
}

// handleLog 归一化单条推送并投递给调度器
func (l *Listener) handleLog(contract *chain.Contract, lg types.Log) {
	// 传输层偶发投递不完整的通知，没有交易哈希的直接丢弃，
	// 绝不用合成键接收
	if lg.TxHash == (common.Hash{}) {
		logger.Warn("Discarding log without transaction hash from contract %s (block %d)",
			contract.GetName(), lg.BlockNumber)
		return
	}

	ev, err := contract.ParseEvent(lg)
	if err != nil {
		logger.Debug("Skipping unparsable log from contract %s: %v", contract.GetName(), err)
		return
	}

	l.dispatcher.Submit(ev)
}

// sleep 固定退避，上下文取消时返回false
func (l *Listener) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(reconnectBackoff):
		return true
	}
}
