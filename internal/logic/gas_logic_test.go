package logic

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steampunk99/Hermes/internal/model"
)

func TestDebitClampsAtZero(t *testing.T) {
	db := newTestDB(t)
	g := NewGasLogic(db)
	user := seedUser(t, db, "0xaa01", 0, 0.05)

	// 余额不足时只扣到0，不允许为负
	debited, err := g.Debit(user.Id, 0.1, "relay: test")
	require.NoError(t, err)
	assert.Equal(t, 0.05, debited)

	var got model.UserModel
	require.NoError(t, db.First(&got, user.Id).Error)
	assert.Equal(t, 0.0, got.GasCredit)
}

func TestDebitLedgerMatchesTotal(t *testing.T) {
	db := newTestDB(t)
	g := NewGasLogic(db)
	user := seedUser(t, db, "0xaa02", 0, 1.0)

	var total float64
	for _, amount := range []float64{0.1, 0.25, 0.05} {
		debited, err := g.Debit(user.Id, amount, "relay: test")
		require.NoError(t, err)
		total += debited
	}

	// 流水合计必须等于实际扣减
	used, err := g.TotalUsed(user.Id)
	require.NoError(t, err)
	assert.InDelta(t, total, used, 1e-9)

	var got model.UserModel
	require.NoError(t, db.First(&got, user.Id).Error)
	assert.InDelta(t, 1.0-total, got.GasCredit, 1e-9)
}

func TestDebitConcurrentCannotOverspend(t *testing.T) {
	db := newTestDB(t)
	g := NewGasLogic(db)
	user := seedUser(t, db, "0xaa05", 0, 1.0)

	// 两笔并发扣减合计超过额度：条件更新保证后写的一方
	// 看到前一方的提交，总扣减不超过起始额度
	var wg sync.WaitGroup
	results := make([]float64, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			debited, err := g.Debit(user.Id, 0.8, "relay: race")
			assert.NoError(t, err)
			results[idx] = debited
		}(i)
	}
	wg.Wait()

	assert.InDelta(t, 1.0, results[0]+results[1], 1e-9, "合计扣减不能超过起始额度")

	var got model.UserModel
	require.NoError(t, db.First(&got, user.Id).Error)
	assert.InDelta(t, 0.0, got.GasCredit, 1e-9)

	used, err := g.TotalUsed(user.Id)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, used, 1e-9, "流水合计必须与实际扣减一致")
}

func TestDebitRejectsNegativeAmount(t *testing.T) {
	db := newTestDB(t)
	g := NewGasLogic(db)
	user := seedUser(t, db, "0xaa03", 0, 1.0)

	_, err := g.Debit(user.Id, -0.1, "relay: test")
	assert.Error(t, err)
}

func TestEnqueueDebitIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	g := NewGasLogic(db)
	user := seedUser(t, db, "0xaa06", 0, 1.0)

	// 同一哈希重复登记只留一条债务
	require.NoError(t, g.EnqueueDebit(user.Id, "0xrelay1", "relay: 0xrelay1"))
	require.NoError(t, g.EnqueueDebit(user.Id, "0xrelay1", "relay: 0xrelay1"))

	jobs, err := g.PendingDebits()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "0xrelay1", jobs[0].TxHash)
	assert.Equal(t, user.Id, jobs[0].UserId)
}

func TestDebitJobLifecycle(t *testing.T) {
	db := newTestDB(t)
	g := NewGasLogic(db)
	user := seedUser(t, db, "0xaa07", 0, 1.0)

	require.NoError(t, g.EnqueueDebit(user.Id, "0xrelay2", "relay: 0xrelay2"))
	jobs, err := g.PendingDebits()
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	// 补扣完成后任务终结，不再出现在待处理列表
	require.NoError(t, g.CompleteDebitJob(jobs[0].Id))
	jobs, err = g.PendingDebits()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestDebitJobFailsAfterMaxAttempts(t *testing.T) {
	db := newTestDB(t)
	g := NewGasLogic(db)
	user := seedUser(t, db, "0xaa08", 0, 1.0)

	require.NoError(t, g.EnqueueDebit(user.Id, "0xrelay3", "relay: 0xrelay3"))

	for i := 0; i < maxDebitJobAttempts; i++ {
		jobs, err := g.PendingDebits()
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		require.NoError(t, g.FailDebitJob(&jobs[0], "receipt not available"))
	}

	// 重试超限后终结，等待人工处理
	jobs, err := g.PendingDebits()
	require.NoError(t, err)
	assert.Empty(t, jobs)

	var job model.GasDebitJobModel
	require.NoError(t, db.Where("tx_hash = ?", "0xrelay3").First(&job).Error)
	assert.Equal(t, model.GasDebitStatusFailed, job.Status)
	assert.Equal(t, maxDebitJobAttempts, job.Attempts)
}

func TestDripRespectsCap(t *testing.T) {
	db := newTestDB(t)
	g := NewGasLogic(db)
	user := seedUser(t, db, "0xaa04", 0, 0.08)

	added, err := g.Drip(user.Id, 0.05, 0.1, "periodic gas drip")
	require.NoError(t, err)
	assert.InDelta(t, 0.02, added, 1e-9)

	// 已到上限时不入账也不记流水
	added, err = g.Drip(user.Id, 0.05, 0.1, "periodic gas drip")
	require.NoError(t, err)
	assert.Equal(t, 0.0, added)

	var dripCount int64
	require.NoError(t, db.Model(&model.GasDripModel{}).
		Where("user_id = ? AND type = ?", user.Id, model.GasDripTypeDrip).
		Count(&dripCount).Error)
	assert.Equal(t, int64(1), dripCount)
}
