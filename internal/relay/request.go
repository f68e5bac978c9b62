package relay

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ForwardRequest 提交给转发合约的元交易请求。
// 字段与合约端ForwardRequest结构一一对应，nonce在提交时
// 必须等于转发合约当前期望值，否则被拒绝。
type ForwardRequest struct {
	From       common.Address `json:"from"`
	To         common.Address `json:"to"`
	Value      *big.Int       `json:"value"` // 本系统恒为0
	Gas        *big.Int       `json:"gas"`   // 固定gas预算
	Nonce      *big.Int       `json:"nonce"`
	Data       []byte         `json:"data"`
	ValidUntil *big.Int       `json:"valid_until"`
}

// Domain EIP-712签名域，链ID加转发合约地址
type Domain struct {
	Name              string
	Version           string
	ChainId           int64
	VerifyingContract common.Address
}

// TypedData 构造请求的EIP-712结构化签名数据
func (r *ForwardRequest) TypedData(domain Domain) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"ForwardRequest": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "gas", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "data", Type: "bytes"},
				{Name: "validUntil", Type: "uint256"},
			},
		},
		PrimaryType: "ForwardRequest",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           math.NewHexOrDecimal256(domain.ChainId),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":       r.From.Hex(),
			"to":         r.To.Hex(),
			"value":      (*math.HexOrDecimal256)(r.Value),
			"gas":        (*math.HexOrDecimal256)(r.Gas),
			"nonce":      (*math.HexOrDecimal256)(r.Nonce),
			"data":       hexutil.Encode(r.Data),
			"validUntil": (*math.HexOrDecimal256)(r.ValidUntil),
		},
	}
}
