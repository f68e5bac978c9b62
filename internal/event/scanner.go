package event

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/panjf2000/ants/v2"

	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/model"
)

// HeadSource 链头查询
type HeadSource interface {
	HeadBlock(ctx context.Context) (int64, error)
}

// EventSource 单个合约的历史事件查询
type EventSource interface {
	GetName() string
	GetAddress() common.Address
	GetBlockNum() int64
	FilterEvents(ctx context.Context, fromBlock, toBlock int64) ([]*model.ChainEvent, error)
}

// Scanner 周期性对账扫描。启动时必跑一次以回放停机期间的缺口，
// 之后按固定间隔扫描 [游标+1, head]，分段查询避免单次范围过大。
// 这是订阅路径的安全网：两条路径在调度器的幂等闸门处汇合。
type Scanner struct {
	head       HeadSource
	contracts  []EventSource
	dispatcher *Dispatcher
	eventLogic *logic.EventLogic
	maxChunk   int64
	running    atomic.Bool // 防止扫描周期重叠，新周期直接跳过不排队
}

// NewScanner 创建对账扫描器
func NewScanner(head HeadSource, contracts []EventSource, dispatcher *Dispatcher, eventLogic *logic.EventLogic, maxChunk int64) *Scanner {
	if maxChunk <= 0 {
		maxChunk = 1000
	}
	return &Scanner{
		head:       head,
		contracts:  contracts,
		dispatcher: dispatcher,
		eventLogic: eventLogic,
		maxChunk:   maxChunk,
	}
}

// EnsureStates 为所有受监控合约初始化对账游标（启动时调用）
func (s *Scanner) EnsureStates() error {
	for _, contract := range s.contracts {
		addr := strings.ToLower(contract.GetAddress().Hex())
		if err := s.eventLogic.EnsureState(contract.GetName(), addr, contract.GetBlockNum()); err != nil {
			return fmt.Errorf("failed to ensure state for contract %s: %w", contract.GetName(), err)
		}
	}
	return nil
}

// ScanAll 扫描所有合约。各合约并发执行，单个合约失败不影响其他合约。
// 已有扫描在跑时直接跳过本轮。
func (s *Scanner) ScanAll(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		logger.Warn("Previous reconciliation scan still running, skipping this cycle")
		return
	}
	defer s.running.Store(false)

	head, err := s.head.HeadBlock(ctx)
	if err != nil {
		logger.Error("Failed to get chain head, skipping scan: %v", err)
		return
	}

	if len(s.contracts) == 0 {
		return
	}

	pool, err := ants.NewPool(len(s.contracts))
	if err != nil {
		logger.Error("Failed to create scan pool: %v", err)
		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, contract := range s.contracts {
		contract := contract
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := s.scanContract(ctx, contract, head); err != nil {
				logger.Error("Error scanning contract %s: %v", contract.GetName(), err)
			}
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit scan task for contract %s: %v", contract.GetName(), err)
		}
	}
	wg.Wait()
}

// scanContract 从持久化游标追到链头，按区块段分批处理
func (s *Scanner) scanContract(ctx context.Context, contract EventSource, head int64) error {
	addr := strings.ToLower(contract.GetAddress().Hex())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		state, err := s.eventLogic.GetState(addr)
		if err != nil {
			return err
		}

		from := state.LastProcessedBlock + 1
		if from > head {
			return nil // 已追上链头
		}

		to := from + s.maxChunk - 1
		if to > head {
			to = head
		}

		events, err := contract.FilterEvents(ctx, from, to)
		if err != nil {
			return fmt.Errorf("failed to query blocks %d-%d: %w", from, to, err)
		}

		// 同一合约内按区块升序投递
		sort.Slice(events, func(i, j int) bool {
			if events[i].BlockNum != events[j].BlockNum {
				return events[i].BlockNum < events[j].BlockNum
			}
			return events[i].LogIndex < events[j].LogIndex
		})

		for _, ev := range events {
			if err := s.dispatcher.Process(ev); err != nil {
				// 中断本段，游标停在最后一个成功事件处，下一轮从那里续扫
				return fmt.Errorf("failed to process event %s:%d: %w", ev.TxHash, ev.LogIndex, err)
			}
		}

		// 整段干净扫完后推进游标，否则无事件的区块段会被永远重扫
		if err := s.eventLogic.Advance(addr, to); err != nil {
			return err
		}

		if len(events) > 0 {
			logger.Info("Reconciled %d events for contract %s in blocks %d-%d",
				len(events), contract.GetName(), from, to)
		}
	}
}
