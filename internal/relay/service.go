package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/steampunk99/Hermes/internal/chain"
	"github.com/steampunk99/Hermes/internal/config"
	"github.com/steampunk99/Hermes/internal/keystore"
	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
)

// Service 元交易中继服务。自托管和托管两种签名模式在
// Execute处汇合：都先验签、再执行、最后按回执扣gas额度。
type Service struct {
	builder    *Builder
	verifier   *Verifier
	executor   *Executor
	accountant *Accountant
	gasLogic   *logic.GasLogic
	keystore   *keystore.Keystore
	token      *chain.Contract
}

// NewService 组装中继服务
func NewService(manager *chain.Manager, ks *keystore.Keystore, gasLogic *logic.GasLogic, cfg config.RelayConfig) (*Service, error) {
	forwarder, err := manager.GetContract("forwarder")
	if err != nil {
		return nil, err
	}
	token, err := manager.GetContract("token")
	if err != nil {
		return nil, err
	}

	builder := NewBuilder(forwarder, cfg)
	executor, err := NewExecutor(manager, forwarder, cfg)
	if err != nil {
		return nil, err
	}

	return &Service{
		builder:    builder,
		verifier:   NewVerifier(builder.Domain(manager.GetChainId())),
		executor:   executor,
		accountant: NewAccountant(manager, gasLogic, cfg),
		gasLogic:   gasLogic,
		keystore:   ks,
		token:      token,
	}, nil
}

// PrepareTransfer 构造代币转账的转发请求（自托管用户取回去签名）
func (s *Service) PrepareTransfer(ctx context.Context, user *model.UserModel, to common.Address, amount float64) (*ForwardRequest, error) {
	calldata, err := s.token.Pack("transfer", to, toWei(amount))
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer call: %w", err)
	}
	return s.builder.BuildRequest(ctx, common.HexToAddress(user.WalletAddress), s.token.GetAddress(), calldata)
}

// PrepareBurn 构造提现燃烧的转发请求
func (s *Service) PrepareBurn(ctx context.Context, user *model.UserModel, amount float64) (*ForwardRequest, error) {
	calldata, err := s.token.Pack("burn", toWei(amount))
	if err != nil {
		return nil, fmt.Errorf("failed to pack burn call: %w", err)
	}
	return s.builder.BuildRequest(ctx, common.HexToAddress(user.WalletAddress), s.token.GetAddress(), calldata)
}

// ExecuteSigned 自托管模式：校验客户端提交的签名后执行
func (s *Service) ExecuteSigned(ctx context.Context, user *model.UserModel, req *ForwardRequest, signature []byte) (*Result, error) {
	if req.From != common.HexToAddress(user.WalletAddress) {
		return nil, errors.New("请求的发起地址与用户钱包不一致")
	}
	if err := s.verifier.Verify(req, signature); err != nil {
		return nil, err
	}
	return s.execute(ctx, user, req, signature)
}

// ExecuteCustodial 托管模式：用用户的托管密钥在后台代签后执行。
// 私钥只在本调用栈内存中出现。
func (s *Service) ExecuteCustodial(ctx context.Context, user *model.UserModel, req *ForwardRequest) (*Result, error) {
	if user.EncryptedKey == "" {
		return nil, errors.New("用户没有托管密钥")
	}

	key, err := s.keystore.Decrypt(user.EncryptedKey)
	if err != nil {
		return nil, err
	}

	signature, err := Sign(req, s.verifier.domain, key)
	if err != nil {
		return nil, err
	}

	// 代签也走同一条校验路径，密钥与钱包不配对时在这里暴露
	if err := s.verifier.Verify(req, signature); err != nil {
		return nil, err
	}
	return s.execute(ctx, user, req, signature)
}

// execute 执行并按回执扣gas额度。哈希已经发出去的交易，
// 扣账义务不随回执缺失或扣账失败而消失：登记补扣任务，
// 由后台任务拿哈希补拉回执再扣。
func (s *Service) execute(ctx context.Context, user *model.UserModel, req *ForwardRequest, signature []byte) (*Result, error) {
	result, err := s.executor.Execute(ctx, req, signature)
	if err != nil {
		return nil, err
	}

	if result.TxHash == "" {
		return result, nil
	}

	note := "relay: " + result.TxHash
	if result.Receipt == nil {
		// 回执超时，交易可能已上链
		logger.Warn("Receipt missing for relay tx %s, queuing gas debit for user %d", result.TxHash, user.Id)
		if err := s.gasLogic.EnqueueDebit(user.Id, result.TxHash, note); err != nil {
			logger.Error("Failed to queue gas debit for tx %s: %v", result.TxHash, err)
		}
		return result, nil
	}

	if _, err := s.accountant.Debit(ctx, user.Id, result.Receipt, note); err != nil {
		logger.Error("Failed to debit gas credit for user %d (tx %s), queuing retry: %v", user.Id, result.TxHash, err)
		if qerr := s.gasLogic.EnqueueDebit(user.Id, result.TxHash, note); qerr != nil {
			logger.Error("Failed to queue gas debit for tx %s: %v", result.TxHash, qerr)
		}
	}

	return result, nil
}

// toWei 内部币种金额转为18位精度的链上整数
func toWei(amount float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e18)).Int(nil)
	return wei
}
