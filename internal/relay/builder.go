package relay

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/steampunk99/Hermes/internal/chain"
	"github.com/steampunk99/Hermes/internal/config"
)

// Builder 元交易请求构造器。nonce在构造时从转发合约即时读取，
// 不在本地缓存：本地缓存的nonce在多实例部署下必然漂移。
type Builder struct {
	forwarder *chain.Contract
	cfg       config.RelayConfig
}

// NewBuilder 创建请求构造器
func NewBuilder(forwarder *chain.Contract, cfg config.RelayConfig) *Builder {
	return &Builder{
		forwarder: forwarder,
		cfg:       cfg,
	}
}

// BuildRequest 为用户动作构造转发请求：即时nonce、零value、
// 固定gas预算、配置的有效期
func (b *Builder) BuildRequest(ctx context.Context, from, to common.Address, calldata []byte) (*ForwardRequest, error) {
	var nonce *big.Int
	if err := b.forwarder.Call(ctx, &nonce, "getNonce", from); err != nil {
		return nil, fmt.Errorf("failed to fetch forwarder nonce for %s: %w", from.Hex(), err)
	}

	return &ForwardRequest{
		From:       from,
		To:         to,
		Value:      big.NewInt(0),
		Gas:        new(big.Int).SetUint64(b.cfg.GasLimit),
		Nonce:      nonce,
		Data:       calldata,
		ValidUntil: big.NewInt(time.Now().Unix() + b.cfg.ValidSeconds),
	}, nil
}

// Domain 本链的EIP-712签名域
func (b *Builder) Domain(chainId int64) Domain {
	return Domain{
		Name:              b.cfg.DomainName,
		Version:           b.cfg.DomainVersion,
		ChainId:           chainId,
		VerifyingContract: b.forwarder.GetAddress(),
	}
}
