package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
)

// AccountHandler 账户查询处理器
type AccountHandler struct {
	ledgerLogic *logic.LedgerLogic
	gasLogic    *logic.GasLogic
}

// NewAccountHandler 创建账户处理器
func NewAccountHandler(ledgerLogic *logic.LedgerLogic, gasLogic *logic.GasLogic) *AccountHandler {
	return &AccountHandler{
		ledgerLogic: ledgerLogic,
		gasLogic:    gasLogic,
	}
}

// GetBalance 获取用户余额和gas额度
func (h *AccountHandler) GetBalance(c *gin.Context) {
	userId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的用户ID")
		return
	}

	user, err := h.ledgerLogic.GetUserById(userId)
	if err != nil {
		ErrorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	gasUsed, err := h.gasLogic.TotalUsed(userId)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "获取余额成功", BalanceResponse{
		WalletAddress: user.WalletAddress,
		Balance:       user.Balance,
		GasCredit:     user.GasCredit,
		GasUsed:       gasUsed,
	})
}

// GetTransactions 分页获取用户交易记录
func (h *AccountHandler) GetTransactions(c *gin.Context) {
	userId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的用户ID")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	records, total, err := h.ledgerLogic.ListTransactions(userId, page, pageSize)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "获取交易记录成功", GetTransactionsResponse{
		Transactions: toTransactionResponseList(records),
		Pagination:   newPagination(page, pageSize, total),
	})
}

// GetRate 获取当前缓存汇率
func (h *AccountHandler) GetRate(c *gin.Context) {
	rate, err := h.ledgerLogic.GetRate()
	if err != nil {
		ErrorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "获取汇率成功", RateResponse{
		Pair:      rate.Pair,
		Rate:      rate.Rate,
		UpdatedOn: rate.UpdatedOn,
	})
}

// toTransactionResponseList 交易记录转响应模型
func toTransactionResponseList(records []model.TransactionModel) []TransactionResponse {
	result := make([]TransactionResponse, 0, len(records))
	for _, r := range records {
		result = append(result, TransactionResponse{
			ID:        r.Id,
			Type:      string(r.Type),
			Status:    string(r.Status),
			Amount:    r.Amount,
			TxHash:    r.TxHash,
			Reference: r.Reference,
			CreatedAt: r.CreatedAt,
		})
	}
	return result
}
