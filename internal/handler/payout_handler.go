package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
)

// PayoutHandler 出款回调处理器
type PayoutHandler struct {
	ledgerLogic *logic.LedgerLogic
}

// NewPayoutHandler 创建出款回调处理器
func NewPayoutHandler(ledgerLogic *logic.LedgerLogic) *PayoutHandler {
	return &PayoutHandler{ledgerLogic: ledgerLogic}
}

// Callback 出款服务回调。回调可能重复投递，确认逻辑按reference幂等。
func (h *PayoutHandler) Callback(c *gin.Context) {
	var req PayoutCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求参数不合法: "+err.Error())
		return
	}

	if err := h.ledgerLogic.ConfirmPayout(req.Reference, req.Success, req.Detail); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	logger.Info("Payout callback processed for reference %s (success=%t)", req.Reference, req.Success)
	SuccessResponse(c, http.StatusOK, "回调处理成功", nil)
}
