package handler

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/steampunk99/Hermes/internal/relay"
)

// 中继相关请求/响应模型

// ForwardRequestPayload 转发请求的JSON表示。数值字段用十进制
// 字符串传输，避免JSON数字精度问题；calldata为hex编码。
type ForwardRequestPayload struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Value      string `json:"value"`
	Gas        string `json:"gas"`
	Nonce      string `json:"nonce"`
	Data       string `json:"data"`
	ValidUntil string `json:"validUntil"`
}

// ToForwardRequestPayload 内部请求转JSON表示
func ToForwardRequestPayload(req *relay.ForwardRequest) ForwardRequestPayload {
	return ForwardRequestPayload{
		From:       req.From.Hex(),
		To:         req.To.Hex(),
		Value:      req.Value.String(),
		Gas:        req.Gas.String(),
		Nonce:      req.Nonce.String(),
		Data:       hexutil.Encode(req.Data),
		ValidUntil: req.ValidUntil.String(),
	}
}

// ToForwardRequest JSON表示转内部请求。客户端回传的请求必须
// 逐字段可解析，任何一个字段不合法都整体拒绝。
func (p ForwardRequestPayload) ToForwardRequest() (*relay.ForwardRequest, error) {
	value, ok := new(big.Int).SetString(p.Value, 10)
	if !ok {
		return nil, errors.New("value字段不合法")
	}
	gas, ok := new(big.Int).SetString(p.Gas, 10)
	if !ok {
		return nil, errors.New("gas字段不合法")
	}
	nonce, ok := new(big.Int).SetString(p.Nonce, 10)
	if !ok {
		return nil, errors.New("nonce字段不合法")
	}
	validUntil, ok := new(big.Int).SetString(p.ValidUntil, 10)
	if !ok {
		return nil, errors.New("validUntil字段不合法")
	}
	data, err := hexutil.Decode(p.Data)
	if err != nil {
		return nil, errors.New("data字段不合法")
	}

	return &relay.ForwardRequest{
		From:       common.HexToAddress(p.From),
		To:         common.HexToAddress(p.To),
		Value:      value,
		Gas:        gas,
		Nonce:      nonce,
		Data:       data,
		ValidUntil: validUntil,
	}, nil
}

// PrepareTransferRequest 构造转账转发请求
type PrepareTransferRequest struct {
	UserId int64   `json:"userId" binding:"required"`
	To     string  `json:"to" binding:"required"`
	Amount float64 `json:"amount" binding:"required"`
}

// PrepareWithdrawalRequest 构造提现（燃烧）转发请求
type PrepareWithdrawalRequest struct {
	UserId      int64   `json:"userId" binding:"required"`
	Amount      float64 `json:"amount" binding:"required"`
	Destination string  `json:"destination" binding:"required"`
	Reference   string  `json:"reference" binding:"required"`
}

// PrepareResponse 构造转发请求的响应
type PrepareResponse struct {
	Request ForwardRequestPayload `json:"request"`
}

// ExecuteRequest 执行转发请求。signature为空时走托管代签模式
type ExecuteRequest struct {
	UserId    int64                 `json:"userId" binding:"required"`
	Request   ForwardRequestPayload `json:"request" binding:"required"`
	Signature string                `json:"signature"`
}

// ExecuteResponse 执行转发请求的响应
type ExecuteResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// 账户相关响应模型

// BalanceResponse 账户余额响应
type BalanceResponse struct {
	WalletAddress string  `json:"walletAddress"`
	Balance       float64 `json:"balance"`
	GasCredit     float64 `json:"gasCredit"`
	GasUsed       float64 `json:"gasUsed"`
}

// TransactionResponse 交易记录响应模型
type TransactionResponse struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Amount    float64   `json:"amount"`
	TxHash    string    `json:"txHash"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"createdAt"`
}

// GetTransactionsResponse 获取交易记录响应
type GetTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Pagination   Pagination            `json:"pagination"`
}

// RateResponse 汇率响应
type RateResponse struct {
	Pair      string    `json:"pair"`
	Rate      float64   `json:"rate"`
	UpdatedOn time.Time `json:"updatedOn"`
}

// 出款相关请求模型

// PayoutCallbackRequest 出款服务回调
type PayoutCallbackRequest struct {
	Reference string `json:"reference" binding:"required"`
	Success   bool   `json:"success"`
	Detail    string `json:"detail"`
}
