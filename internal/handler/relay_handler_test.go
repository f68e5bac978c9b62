package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/steampunk99/Hermes/internal/database"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
	"github.com/steampunk99/Hermes/internal/relay"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		NamingStrategy: &schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

// stubRelayer 预置响应的中继服务替身
type stubRelayer struct {
	prepareErr error
	request    *relay.ForwardRequest
}

func (s *stubRelayer) PrepareTransfer(ctx context.Context, user *model.UserModel, to common.Address, amount float64) (*relay.ForwardRequest, error) {
	if s.prepareErr != nil {
		return nil, s.prepareErr
	}
	return s.request, nil
}

func (s *stubRelayer) PrepareBurn(ctx context.Context, user *model.UserModel, amount float64) (*relay.ForwardRequest, error) {
	if s.prepareErr != nil {
		return nil, s.prepareErr
	}
	return s.request, nil
}

func (s *stubRelayer) ExecuteSigned(ctx context.Context, user *model.UserModel, req *relay.ForwardRequest, signature []byte) (*relay.Result, error) {
	return &relay.Result{Success: true}, nil
}

func (s *stubRelayer) ExecuteCustodial(ctx context.Context, user *model.UserModel, req *relay.ForwardRequest) (*relay.Result, error) {
	return &relay.Result{Success: true}, nil
}

func stubForwardRequest(from string) *relay.ForwardRequest {
	return &relay.ForwardRequest{
		From:       common.HexToAddress(from),
		To:         common.HexToAddress("0x6666666666666666666666666666666666666666"),
		Value:      big.NewInt(0),
		Gas:        big.NewInt(300000),
		Nonce:      big.NewInt(0),
		Data:       []byte{0x42},
		ValidUntil: big.NewInt(1900000000),
	}
}

func postWithdrawal(t *testing.T, h *RelayHandler, body PrepareWithdrawalRequest) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/relay/withdrawals/prepare", h.PrepareWithdrawal)

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/relay/withdrawals/prepare", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPrepareWithdrawalFailureLeavesNoOrphans(t *testing.T) {
	db := newTestDB(t)
	user := &model.UserModel{WalletAddress: "0xcc01", Balance: 1000}
	require.NoError(t, db.Create(user).Error)

	h := NewRelayHandler(logic.NewLedgerLogic(db), &stubRelayer{
		prepareErr: errors.New("nonce查询失败"),
	})

	w := postWithdrawal(t, h, PrepareWithdrawalRequest{
		UserId:      user.Id,
		Amount:      500,
		Destination: "256700000010",
		Reference:   "wd-orphan",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// 请求构造失败时不能留下已扣余额的孤儿记录
	var got model.UserModel
	require.NoError(t, db.First(&got, user.Id).Error)
	assert.Equal(t, 1000.0, got.Balance)

	var txCount, jobCount int64
	require.NoError(t, db.Model(&model.TransactionModel{}).Count(&txCount).Error)
	require.NoError(t, db.Model(&model.PayoutJobModel{}).Count(&jobCount).Error)
	assert.Zero(t, txCount)
	assert.Zero(t, jobCount)
}

func TestPrepareWithdrawalCreatesPendingRecords(t *testing.T) {
	db := newTestDB(t)
	user := &model.UserModel{WalletAddress: "0xcc02", Balance: 1000}
	require.NoError(t, db.Create(user).Error)

	h := NewRelayHandler(logic.NewLedgerLogic(db), &stubRelayer{
		request: stubForwardRequest("0xcc02"),
	})

	w := postWithdrawal(t, h, PrepareWithdrawalRequest{
		UserId:      user.Id,
		Amount:      500,
		Destination: "256700000011",
		Reference:   "wd-ok",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var got model.UserModel
	require.NoError(t, db.First(&got, user.Id).Error)
	assert.Equal(t, 500.0, got.Balance)

	var record model.TransactionModel
	require.NoError(t, db.Where("reference = ?", "wd-ok").First(&record).Error)
	assert.Equal(t, model.TransactionStatusPending, record.Status)

	var job model.PayoutJobModel
	require.NoError(t, db.Where("reference = ?", "wd-ok").First(&job).Error)
	assert.Equal(t, model.PayoutStatusPending, job.Status)
}
