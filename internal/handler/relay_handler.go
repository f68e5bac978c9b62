package handler

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
	"github.com/steampunk99/Hermes/internal/relay"
)

// Relayer 处理器依赖的中继服务能力
type Relayer interface {
	PrepareTransfer(ctx context.Context, user *model.UserModel, to common.Address, amount float64) (*relay.ForwardRequest, error)
	PrepareBurn(ctx context.Context, user *model.UserModel, amount float64) (*relay.ForwardRequest, error)
	ExecuteSigned(ctx context.Context, user *model.UserModel, req *relay.ForwardRequest, signature []byte) (*relay.Result, error)
	ExecuteCustodial(ctx context.Context, user *model.UserModel, req *relay.ForwardRequest) (*relay.Result, error)
}

// RelayHandler 元交易中继处理器
type RelayHandler struct {
	ledgerLogic  *logic.LedgerLogic
	relayService Relayer
}

// NewRelayHandler 创建中继处理器
func NewRelayHandler(ledgerLogic *logic.LedgerLogic, relayService Relayer) *RelayHandler {
	return &RelayHandler{
		ledgerLogic:  ledgerLogic,
		relayService: relayService,
	}
}

// PrepareTransfer 构造转账转发请求，自托管用户拿回去签名
func (h *RelayHandler) PrepareTransfer(c *gin.Context) {
	var req PrepareTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求参数不合法: "+err.Error())
		return
	}

	if !common.IsHexAddress(req.To) {
		ErrorResponse(c, http.StatusBadRequest, "无效的收款地址")
		return
	}

	user, err := h.ledgerLogic.GetUserById(req.UserId)
	if err != nil {
		ErrorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	forwardReq, err := h.relayService.PrepareTransfer(c.Request.Context(), user, common.HexToAddress(req.To), req.Amount)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "构造转账请求成功", PrepareResponse{
		Request: ToForwardRequestPayload(forwardReq),
	})
}

// PrepareWithdrawal 构造燃烧转发请求并创建待确认的提现记录。
// 请求构造没有副作用，放在前面：nonce拉取失败时不能留下
// 已扣余额的孤儿记录。记录落库后，燃烧事件上链由对账引擎回填确认。
func (h *RelayHandler) PrepareWithdrawal(c *gin.Context) {
	var req PrepareWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求参数不合法: "+err.Error())
		return
	}

	user, err := h.ledgerLogic.GetUserById(req.UserId)
	if err != nil {
		ErrorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	forwardReq, err := h.relayService.PrepareBurn(c.Request.Context(), user, req.Amount)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := h.ledgerLogic.CreateWithdrawal(user, req.Amount, req.Destination, req.Reference); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "创建提现请求成功", PrepareResponse{
		Request: ToForwardRequestPayload(forwardReq),
	})
}

// Execute 执行转发请求。带签名走自托管校验路径，不带签名且
// 用户有托管密钥时由后台代签。
func (h *RelayHandler) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求参数不合法: "+err.Error())
		return
	}

	user, err := h.ledgerLogic.GetUserById(req.UserId)
	if err != nil {
		ErrorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	forwardReq, err := req.Request.ToForwardRequest()
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var result *relay.Result
	if req.Signature != "" {
		signature, err := hexutil.Decode(req.Signature)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "签名格式不合法")
			return
		}
		result, err = h.relayService.ExecuteSigned(c.Request.Context(), user, forwardReq, signature)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		if user.SelfCustody {
			ErrorResponse(c, http.StatusBadRequest, "自托管用户必须提供签名")
			return
		}
		result, err = h.relayService.ExecuteCustodial(c.Request.Context(), user, forwardReq)
		if err != nil {
			ErrorResponse(c, http.StatusInternalServerError, err.Error())
			return
		}
	}

	SuccessResponse(c, http.StatusOK, "中继请求已处理", ExecuteResponse{
		Success: result.Success,
		TxHash:  result.TxHash,
		Reason:  result.Reason,
	})
}
