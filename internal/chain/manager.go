package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/steampunk99/Hermes/internal/config"
	"github.com/steampunk99/Hermes/internal/logger"
)

// Manager 单链管理器，持有RPC/WS客户端与所有合约实例。
// 客户端由组合根显式构造并注入，不使用包级单例。
type Manager struct {
	mu        sync.RWMutex
	contracts map[string]*Contract // 合约映射: "contractName" -> Contract
	client    *ethclient.Client    // HTTP客户端（查询、提交）
	wsClient  *ethclient.Client    // WebSocket客户端（事件订阅），可为空
	config    config.ChainConfig
}

// NewManager 创建单链管理器
func NewManager(cfg config.ChainConfig) (*Manager, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}

	logger.Info("Initializing chain client (chain id: %d)", cfg.ChainId)

	client, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain client: %w", err)
	}

	// 测试连接
	if _, err := client.BlockNumber(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("chain client connection test failed: %w", err)
	}

	var wsClient *ethclient.Client
	if cfg.WsUrl != "" {
		wsClient, err = ethclient.Dial(cfg.WsUrl)
		if err != nil {
			// 订阅不可用时对账扫描仍然工作，不作为致命错误
			logger.Warn("Failed to create websocket client, live subscription disabled: %v", err)
			wsClient = nil
		}
	}

	manager := &Manager{
		contracts: make(map[string]*Contract),
		client:    client,
		wsClient:  wsClient,
		config:    cfg,
	}

	if err := manager.initContracts(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize contracts: %w", err)
	}

	return manager, nil
}

// initContracts 初始化所有启用的合约
func (m *Manager) initContracts(cfg config.ChainConfig) error {
	for contractName, contractCfg := range cfg.Contracts {
		if !contractCfg.Enabled {
			logger.Info("Skipping disabled contract: %s", contractName)
			continue
		}

		contract, err := NewContract(m.client, contractName, contractCfg)
		if err != nil {
			return fmt.Errorf("failed to create contract %s: %w", contractName, err)
		}

		m.contracts[contractName] = contract
		logger.Info("Initialized contract %s (address: %s, deploy block: %d)",
			contractName, contractCfg.Address, contractCfg.BlockNum)
	}

	logger.Info("Successfully initialized %d contracts", len(m.contracts))
	return nil
}

// GetClient 获取HTTP客户端
func (m *Manager) GetClient() *ethclient.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// HasSubscription 是否支持事件订阅
func (m *Manager) HasSubscription() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.wsClient != nil
}

// GetContract 获取指定合约
func (m *Manager) GetContract(contractName string) (*Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	contract, exists := m.contracts[contractName]
	if !exists {
		return nil, fmt.Errorf("contract %s not found", contractName)
	}

	return contract, nil
}

// GetMonitoredContracts 获取所有需要事件监控的合约
func (m *Manager) GetMonitoredContracts() map[string]*Contract {
	m.mu.RLock()
	defer m.mu.RUnlock()

	contracts := make(map[string]*Contract)
	for name, contract := range m.contracts {
		if contract.IsMonitored() {
			contracts[name] = contract
		}
	}

	return contracts
}

// GetChainId 获取链ID
func (m *Manager) GetChainId() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ChainId
}

// HeadBlock 获取当前最新区块号
func (m *Manager) HeadBlock(ctx context.Context) (int64, error) {
	num, err := m.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return int64(num), nil
}

// SubscribeLogs 为单个合约创建事件订阅
func (m *Manager) SubscribeLogs(ctx context.Context, contract *Contract, ch chan<- types.Log) (ethereum.Subscription, error) {
	m.mu.RLock()
	wsClient := m.wsClient
	m.mu.RUnlock()

	if wsClient == nil {
		return nil, fmt.Errorf("websocket client not available")
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{contract.GetAddress()},
	}

	return wsClient.SubscribeFilterLogs(ctx, query, ch)
}

// SuggestGasPrice 查询建议gas价格（回执缺少有效gas价格时的兜底）
func (m *Manager) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return m.client.SuggestGasPrice(ctx)
}

// Close 关闭管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		m.client.Close()
	}
	if m.wsClient != nil {
		m.wsClient.Close()
	}

	logger.Info("Chain manager closed")
	return nil
}
