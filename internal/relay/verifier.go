package relay

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrSignatureMismatch 恢复出的签名者与请求的from不一致
var ErrSignatureMismatch = errors.New("签名与请求发起者不匹配")

// Verifier EIP-712签名校验。任何字段被篡改都会恢复出
// 不同的地址，从而在提交前被拒绝。
type Verifier struct {
	domain Domain
}

// NewVerifier 创建签名校验器
func NewVerifier(domain Domain) *Verifier {
	return &Verifier{domain: domain}
}

// Recover 从结构化签名恢复签名者地址
func (v *Verifier) Recover(req *ForwardRequest, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}

	digest, err := digest(req, v.domain)
	if err != nil {
		return common.Address{}, err
	}

	// 以太坊签名v为27/28，恢复时归一化到0/1
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// Verify 校验签名者即请求的from，不一致返回ErrSignatureMismatch
func (v *Verifier) Verify(req *ForwardRequest, signature []byte) error {
	signer, err := v.Recover(req, signature)
	if err != nil {
		return err
	}
	if signer != req.From {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign 用给定私钥对请求签名（后台托管代签模式）
func Sign(req *ForwardRequest, domain Domain, key *ecdsa.PrivateKey) ([]byte, error) {
	d, err := digest(req, domain)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(d, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// digest 计算EIP-712签名摘要
func digest(req *ForwardRequest, domain Domain) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(req.TypedData(domain))
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return hash, nil
}
