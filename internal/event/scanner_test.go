package event

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
)

// fakeHead 固定链头
type fakeHead struct {
	head int64
}

func (f *fakeHead) HeadBlock(ctx context.Context) (int64, error) {
	return f.head, nil
}

// fakeContract 预置事件的合约事件源，记录每次查询的区块范围
type fakeContract struct {
	name     string
	address  common.Address
	blockNum int64
	events   []*model.ChainEvent
	ranges   [][2]int64
}

func (f *fakeContract) GetName() string            { return f.name }
func (f *fakeContract) GetAddress() common.Address { return f.address }
func (f *fakeContract) GetBlockNum() int64         { return f.blockNum }

func (f *fakeContract) FilterEvents(ctx context.Context, fromBlock, toBlock int64) ([]*model.ChainEvent, error) {
	f.ranges = append(f.ranges, [2]int64{fromBlock, toBlock})

	var matched []*model.ChainEvent
	for _, ev := range f.events {
		if ev.BlockNum >= fromBlock && ev.BlockNum <= toBlock {
			matched = append(matched, ev)
		}
	}
	return matched, nil
}

func newFakeContract(name string, events ...*model.ChainEvent) *fakeContract {
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	for _, ev := range events {
		ev.ContractName = name
		ev.ContractAddress = strings.ToLower(addr.Hex())
	}
	return &fakeContract{
		name:     name,
		address:  addr,
		blockNum: 0,
		events:   events,
	}
}

func tokenMint(txHash string, block int64, amountWei *big.Int) *model.ChainEvent {
	return &model.ChainEvent{
		EventName: "Minted",
		TxHash:    txHash,
		LogIndex:  0,
		BlockNum:  block,
		Args: map[string]interface{}{
			"to":     testWallet,
			"amount": amountWei,
		},
	}
}

func TestScannerReplaysGapAndAdvancesCursor(t *testing.T) {
	db := newTestDB(t)
	d := newTestDispatcher(t, db)
	user := seedUser(t, db, testWallet, 0)

	contract := newFakeContract("token",
		tokenMint("0xf01", 10, big.NewInt(1e18)),
		tokenMint("0xf02", 150, big.NewInt(2e18)),
	)

	eventLogic := logic.NewEventLogic(db)
	scanner := NewScanner(&fakeHead{head: 250}, []EventSource{contract}, d, eventLogic, 100)
	require.NoError(t, scanner.EnsureStates())

	scanner.ScanAll(context.Background())

	// 分段追扫：1-100, 101-200, 201-250
	require.Len(t, contract.ranges, 3)
	assert.Equal(t, [2]int64{1, 100}, contract.ranges[0])
	assert.Equal(t, [2]int64{101, 200}, contract.ranges[1])
	assert.Equal(t, [2]int64{201, 250}, contract.ranges[2])

	var got model.UserModel
	require.NoError(t, db.First(&got, user.Id).Error)
	assert.Equal(t, 3.0, got.Balance)

	state, err := eventLogic.GetState(contract.events[0].ContractAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(250), state.LastProcessedBlock, "无事件的区块段也要推进游标")
}

func TestScannerRescanIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	d := newTestDispatcher(t, db)
	user := seedUser(t, db, testWallet, 0)

	contract := newFakeContract("token", tokenMint("0xf11", 20, big.NewInt(4e18)))
	eventLogic := logic.NewEventLogic(db)
	scanner := NewScanner(&fakeHead{head: 30}, []EventSource{contract}, d, eventLogic, 100)
	require.NoError(t, scanner.EnsureStates())

	scanner.ScanAll(context.Background())

	// 游标推进后重扫不会重新查询已覆盖的区块
	contract.ranges = nil
	scanner.ScanAll(context.Background())
	assert.Empty(t, contract.ranges, "游标之前的区块不应重扫")

	// 即使游标回退导致重新投递，幂等闸门也会吸收重复事件
	require.NoError(t, db.Model(&model.EventStateModel{}).
		Where("contract_address = ?", contract.events[0].ContractAddress).
		Update("last_processed_block", 0).Error)
	scanner.ScanAll(context.Background())

	var got model.UserModel
	require.NoError(t, db.First(&got, user.Id).Error)
	assert.Equal(t, 4.0, got.Balance)
}

// blockingHead 第一次查询阻塞直到放行，用于压住一轮扫描
type blockingHead struct {
	calls    atomic.Int32
	started  chan struct{}
	release  chan struct{}
	onceOpen sync.Once
}

func (b *blockingHead) HeadBlock(ctx context.Context) (int64, error) {
	b.calls.Add(1)
	b.onceOpen.Do(func() { close(b.started) })
	<-b.release
	return 0, nil
}

func TestScannerSkipsOverlappingCycle(t *testing.T) {
	db := newTestDB(t)
	d := newTestDispatcher(t, db)

	contract := newFakeContract("token")
	head := &blockingHead{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	scanner := NewScanner(head, []EventSource{contract}, d, logic.NewEventLogic(db), 100)
	require.NoError(t, scanner.EnsureStates())

	done := make(chan struct{})
	go func() {
		scanner.ScanAll(context.Background())
		close(done)
	}()
	<-head.started

	// 上一轮还卡在链头查询，新周期必须立即跳过而不是排队
	scanner.ScanAll(context.Background())
	assert.Equal(t, int32(1), head.calls.Load(), "重叠周期不应发起第二次扫描")

	close(head.release)
	<-done

	// 上一轮结束后下一周期恢复正常
	scanner.ScanAll(context.Background())
	assert.Equal(t, int32(2), head.calls.Load())
}

func TestScannerHaltsChunkOnProcessingError(t *testing.T) {
	db := newTestDB(t)
	d := newTestDispatcher(t, db)
	seedUser(t, db, testWallet, 0)

	// 金额为0的铸币会让处理单元失败，本段中止、游标停在原地
	contract := newFakeContract("token",
		tokenMint("0xf21", 10, big.NewInt(0)),
		tokenMint("0xf22", 20, big.NewInt(1e18)),
	)

	eventLogic := logic.NewEventLogic(db)
	scanner := NewScanner(&fakeHead{head: 50}, []EventSource{contract}, d, eventLogic, 100)
	require.NoError(t, scanner.EnsureStates())

	scanner.ScanAll(context.Background())

	state, err := eventLogic.GetState(contract.events[0].ContractAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LastProcessedBlock)

	exists, err := eventLogic.CheckEventExists("0xf22", 0)
	require.NoError(t, err)
	assert.False(t, exists, "失败事件之后的事件不应在本段内生效")
}
