package relay

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/steampunk99/Hermes/internal/chain"
	"github.com/steampunk99/Hermes/internal/config"
	"github.com/steampunk99/Hermes/internal/logger"
)

// Result 中继执行的归一化结果。调用方永远拿不到原始传输层错误。
type Result struct {
	Success bool           `json:"success"`
	TxHash  string         `json:"tx_hash,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Receipt *types.Receipt `json:"-"`
}

// forwardRequestTuple execute调用的ABI元组
type forwardRequestTuple struct {
	From       common.Address
	To         common.Address
	Value      *big.Int
	Gas        *big.Int
	Nonce      *big.Int
	Data       []byte
	ValidUntil *big.Int
}

// Executor 中继执行器。先做静态试算，会revert的请求直接把原因
// 返回给调用方，不花一笔失败交易的gas；试算通过后用中继账户
// 签名提交并轮询回执。
type Executor struct {
	manager     *chain.Manager
	forwarder   *chain.Contract
	privateKey  *ecdsa.PrivateKey
	fromAddress common.Address
	receiptWait time.Duration
}

// NewExecutor 创建中继执行器
func NewExecutor(manager *chain.Manager, forwarder *chain.Contract, cfg config.RelayConfig) (*Executor, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse relay private key: %w", err)
	}

	return &Executor{
		manager:     manager,
		forwarder:   forwarder,
		privateKey:  privateKey,
		fromAddress: crypto.PubkeyToAddress(privateKey.PublicKey),
		receiptWait: time.Duration(cfg.ReceiptWait) * time.Second,
	}, nil
}

// RelayAddress 中继账户地址
func (e *Executor) RelayAddress() common.Address {
	return e.fromAddress
}

// Execute 提交已验签的请求。结果总是归一化的Result，
// 只有编码类编程错误才作为error返回。
func (e *Executor) Execute(ctx context.Context, req *ForwardRequest, signature []byte) (*Result, error) {
	tuple := forwardRequestTuple{
		From:       req.From,
		To:         req.To,
		Value:      req.Value,
		Gas:        req.Gas,
		Nonce:      req.Nonce,
		Data:       req.Data,
		ValidUntil: req.ValidUntil,
	}

	calldata, err := e.forwarder.Pack("execute", tuple, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to pack execute call: %w", err)
	}

	// 静态试算，廉价的取消点
	forwarderAddr := e.forwarder.GetAddress()
	_, err = e.manager.GetClient().CallContract(ctx, ethereum.CallMsg{
		From: e.fromAddress,
		To:   &forwarderAddr,
		Data: calldata,
	}, nil)
	if err != nil {
		logger.Warn("Relay dry-run rejected request from %s: %v", req.From.Hex(), err)
		return &Result{
			Success: false,
			Reason:  revertReason(err),
		}, nil
	}

	txHash, err := e.submit(ctx, forwarderAddr, calldata, req.Gas.Uint64())
	if err != nil {
		logger.Error("Relay submission failed for request from %s: %v", req.From.Hex(), err)
		return &Result{
			Success: false,
			Reason:  "交易提交失败: " + revertReason(err),
		}, nil
	}

	receipt, err := e.waitForReceipt(ctx, txHash)
	if err != nil {
		// 交易已上链但回执超时：哈希必须带回给调用方，由对账兜底
		logger.Error("Timed out waiting for relay receipt %s: %v", txHash.Hex(), err)
		return &Result{
			Success: false,
			TxHash:  txHash.Hex(),
			Reason:  "等待交易回执超时",
		}, nil
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return &Result{
			Success: false,
			TxHash:  txHash.Hex(),
			Receipt: receipt,
			Reason:  "交易执行失败",
		}, nil
	}

	logger.Info("Relay transaction confirmed: %s (gas used %d)", txHash.Hex(), receipt.GasUsed)
	return &Result{
		Success: true,
		TxHash:  txHash.Hex(),
		Receipt: receipt,
	}, nil
}

// submit 用中继账户签名并发送交易
func (e *Executor) submit(ctx context.Context, to common.Address, calldata []byte, gasBudget uint64) (common.Hash, error) {
	client := e.manager.GetClient()

	nonce, err := client.PendingNonceAt(ctx, e.fromAddress)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get relay nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to suggest gas price: %w", err)
	}

	// 转发合约本身有调用开销，在内层预算上留余量
	gasLimit := gasBudget + 100000

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, calldata)

	chainId := big.NewInt(e.manager.GetChainId())
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainId), e.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash(), nil
}

// waitForReceipt 轮询等待交易回执
func (e *Executor) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, e.receiptWait)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for transaction %s", txHash.Hex())
		case <-ticker.C:
			receipt, err := e.manager.GetClient().TransactionReceipt(ctx, txHash)
			if err == nil && receipt != nil {
				return receipt, nil
			}
			// 尚未打包，继续等待
		}
	}
}

// revertReason 从客户端错误里提取可读的revert原因
func revertReason(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted"); idx >= 0 {
		return msg[idx:]
	}
	return msg
}
