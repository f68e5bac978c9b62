package event

import (
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/steampunk99/Hermes/internal/database"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
)

const testWallet = "0x1111111111111111111111111111111111111111"

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

	// 内存库串行化写入，避免共享缓存下的表锁
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestDispatcher(t *testing.T, db *gorm.DB) *Dispatcher {
	t.Helper()
	return NewDispatcher(db, logic.NewLedgerLogic(db))
}

func seedUser(t *testing.T, db *gorm.DB, wallet string, balance float64) *model.UserModel {
	t.Helper()
	user := &model.UserModel{
		WalletAddress: wallet,
		Balance:       balance,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedState(t *testing.T, db *gorm.DB, name, addr string, block int64) {
	t.Helper()
	require.NoError(t, logic.NewEventLogic(db).EnsureState(name, addr, block))
}

func mintEvent(txHash string, logIndex, block int64, wallet string, amountWei *big.Int) *model.ChainEvent {
	return &model.ChainEvent{
		ContractName:    "token",
		ContractAddress: "0xtoken",
		EventName:       "Minted",
		TxHash:          txHash,
		LogIndex:        logIndex,
		BlockNum:        block,
		Args: map[string]interface{}{
			"to":     wallet,
			"amount": amountWei,
		},
	}
}

func TestProcessCreditsDepositExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	d := newTestDispatcher(t, db)
	user := seedUser(t, db, testWallet, 0)
	seedState(t, db, "token", "0xtoken", 0)

	ev := mintEvent("0xaaa", 3, 100, testWallet, big.NewInt(5e18))

	// 同一事件投递两次，余额只入账一次
	require.NoError(t, d.Process(ev))
	require.NoError(t, d.Process(ev))

	var got model.UserModel
	require.NoError(t, db.First(&got, user.Id).Error)
	assert.Equal(t, 5.0, got.Balance)

	var eventCount, txCount int64
	require.NoError(t, db.Model(&model.EventModel{}).Count(&eventCount).Error)
	require.NoError(t, db.Model(&model.TransactionModel{}).Count(&txCount).Error)
	assert.Equal(t, int64(1), eventCount)
	assert.Equal(t, int64(1), txCount)
}

func TestProcessConcurrentDeliveryRace(t *testing.T) {
	db := newTestDB(t)
	d := newTestDispatcher(t, db)
	user := seedUser(t, db, testWallet, 0)
	seedState(t, db, "token", "0xtoken", 0)

	ev := mintEvent("0xbbb", 0, 50, testWallet, big.NewInt(2e18))

	// 订阅路径和扫描路径同时送达同一事件
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Process(ev))
		}()
	}
	wg.Wait()

	var got model.UserModel
	require.NoError(t, db.First(&got, user.Id).Error)
	assert.Equal(t, 2.0, got.Balance)
}

func TestProcessHandlerErrorRollsBackUnit(t *testing.T) {
	db := newTestDB(t)
	d := newTestDispatcher(t, db)
	seedUser(t, db, testWallet, 0)
	seedState(t, db, "token", "0xtoken", 0)

	// 金额为0的铸币会被账本层拒绝，整个处理单元必须回滚
	bad := mintEvent("0xccc", 1, 80, testWallet, big.NewInt(0))
	require.Error(t, d.Process(bad))

	exists, err := logic.NewEventLogic(db).CheckEventExists("0xccc", 1)
	require.NoError(t, err)
	assert.False(t, exists, "失败事件的记录不应残留")

	state, err := logic.NewEventLogic(db).GetState("0xtoken")
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LastProcessedBlock, "失败事件不应推进游标")

	// 修正后的同一事件仍然可以被接受
	good := mintEvent("0xccc", 1, 80, testWallet, big.NewInt(1e18))
	require.NoError(t, d.Process(good))
}

func TestProcessUnknownEventMarkedProcessed(t *testing.T) {
	db := newTestDB(t)
	d := newTestDispatcher(t, db)
	seedState(t, db, "token", "0xtoken", 0)

	ev := &model.ChainEvent{
		ContractName:    "token",
		ContractAddress: "0xtoken",
		EventName:       "Paused",
		TxHash:          "0xddd",
		LogIndex:        0,
		BlockNum:        60,
		Args:            map[string]interface{}{},
	}

	// 未注册的事件类型记录后直接吸收，不留重试残骸
	require.NoError(t, d.Process(ev))

	record, err := logic.NewEventLogic(db).GetEvent("0xddd", 0)
	require.NoError(t, err)
	assert.True(t, record.Processed)
}

func TestProcessCheckpointIsMonotonic(t *testing.T) {
	db := newTestDB(t)
	d := newTestDispatcher(t, db)
	seedUser(t, db, testWallet, 0)
	seedState(t, db, "token", "0xtoken", 0)

	require.NoError(t, d.Process(mintEvent("0xe01", 0, 100, testWallet, big.NewInt(1e18))))
	require.NoError(t, d.Process(mintEvent("0xe02", 0, 40, testWallet, big.NewInt(1e18))))

	state, err := logic.NewEventLogic(db).GetState("0xtoken")
	require.NoError(t, err)
	assert.Equal(t, int64(100), state.LastProcessedBlock, "落后区块的事件不应回退游标")
}
