package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/steampunk99/Hermes/internal/config"
	"github.com/steampunk99/Hermes/internal/model"
)

// 稳定币合约ABI（仅本服务关心的事件）
const tokenABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "to", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "Minted",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "from", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "Burned",
		"type": "event"
	},
	{
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "amount", "type": "uint256"}],
		"name": "burn",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// swap合约ABI
const swapABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "buyer", "type": "address"},
			{"indexed": false, "name": "amountIn", "type": "uint256"},
			{"indexed": false, "name": "amountOut", "type": "uint256"}
		],
		"name": "SwapConfirmed",
		"type": "event"
	}
]`

// 预言机合约ABI
const oracleABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "rate", "type": "uint256"},
			{"indexed": false, "name": "timestamp", "type": "uint256"}
		],
		"name": "PriceUpdated",
		"type": "event"
	}
]`

// 转发合约ABI（元交易）
const forwarderABI = `[
	{
		"inputs": [{"name": "from", "type": "address"}],
		"name": "getNonce",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{
				"components": [
					{"name": "from", "type": "address"},
					{"name": "to", "type": "address"},
					{"name": "value", "type": "uint256"},
					{"name": "gas", "type": "uint256"},
					{"name": "nonce", "type": "uint256"},
					{"name": "data", "type": "bytes"},
					{"name": "validUntil", "type": "uint256"}
				],
				"name": "req",
				"type": "tuple"
			},
			{"name": "signature", "type": "bytes"}
		],
		"name": "execute",
		"outputs": [
			{"name": "success", "type": "bool"},
			{"name": "ret", "type": "bytes"}
		],
		"stateMutability": "payable",
		"type": "function"
	}
]`

// contractABIs 合约名称到ABI定义的映射
var contractABIs = map[string]string{
	"token":     tokenABI,
	"swap":      swapABI,
	"oracle":    oracleABI,
	"forwarder": forwarderABI,
}

// Contract 合约工具类
type Contract struct {
	client   *ethclient.Client
	name     string
	address  common.Address
	abi      abi.ABI
	blockNum int64 // 部署区块号
}

// NewContract 创建合约实例
func NewContract(client *ethclient.Client, name string, cfg config.ContractConfig) (*Contract, error) {
	abiJSON, ok := contractABIs[name]
	if !ok {
		return nil, fmt.Errorf("no ABI defined for contract %s", name)
	}

	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI for contract %s: %w", name, err)
	}

	return &Contract{
		client:   client,
		name:     name,
		address:  common.HexToAddress(cfg.Address),
		abi:      parsedABI,
		blockNum: cfg.BlockNum,
	}, nil
}

// GetName 获取合约名称
func (c *Contract) GetName() string {
	return c.name
}

// GetAddress 获取合约地址
func (c *Contract) GetAddress() common.Address {
	return c.address
}

// GetBlockNum 获取部署区块号
func (c *Contract) GetBlockNum() int64 {
	return c.blockNum
}

// GetABI 获取解析后的ABI
func (c *Contract) GetABI() abi.ABI {
	return c.abi
}

// IsMonitored 合约是否需要事件监控
func (c *Contract) IsMonitored() bool {
	return len(c.abi.Events) > 0
}

// ParseEvent 解析事件日志，归一化为 ChainEvent。
// 订阅路径和扫描路径都经过这里，下游无法区分来源。
func (c *Contract) ParseEvent(log types.Log) (*model.ChainEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}

	event, err := c.abi.EventByID(log.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("unknown event signature %s for contract %s", log.Topics[0].Hex(), c.name)
	}

	args := make(map[string]interface{})

	// 非索引参数
	if len(log.Data) > 0 {
		if err := c.abi.UnpackIntoMap(args, event.Name, log.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack event %s data: %w", event.Name, err)
		}
	}

	// 索引参数
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
			return nil, fmt.Errorf("failed to parse event %s topics: %w", event.Name, err)
		}
	}

	// 地址参数统一转为小写hex字符串
	for k, v := range args {
		if addr, ok := v.(common.Address); ok {
			args[k] = strings.ToLower(addr.Hex())
		}
	}

	return &model.ChainEvent{
		ContractName:    c.name,
		ContractAddress: strings.ToLower(c.address.Hex()),
		EventName:       event.Name,
		TxHash:          log.TxHash.Hex(),
		BlockNum:        int64(log.BlockNumber),
		LogIndex:        int64(log.Index),
		Args:            args,
	}, nil
}

// FilterEvents 查询指定区块范围内本合约的事件，按区块升序返回
func (c *Contract) FilterEvents(ctx context.Context, fromBlock, toBlock int64) ([]*model.ChainEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: []common.Address{c.address},
	}

	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs for contract %s: %w", c.name, err)
	}

	events := make([]*model.ChainEvent, 0, len(logs))
	for _, l := range logs {
		ev, err := c.ParseEvent(l)
		if err != nil {
			// 同一地址上的未知事件不是错误，跳过即可
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

// Call 对合约做只读调用并解包单个返回值
func (c *Contract) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	data, err := c.abi.Pack(method, params...)
	if err != nil {
		return fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	ret, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.address,
		Data: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}

	if err := c.abi.UnpackIntoInterface(result, method, ret); err != nil {
		return fmt.Errorf("failed to unpack %s result: %w", method, err)
	}

	return nil
}

// Pack 编码合约方法调用
func (c *Contract) Pack(method string, params ...interface{}) ([]byte, error) {
	return c.abi.Pack(method, params...)
}
