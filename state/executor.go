package state

import (
	"time"

	"github.com/tendermint/tendermint/libs/log"

	"educoin_demo/mempool"
	"educoin_demo/types"
)

const (
	// 落盘失败后的重试次数和起始间隔
	persistAttempts = 3
	persistBackoff  = 100 * time.Millisecond
)

type BlockExecutor interface {
	// CommitBlock 将mempool最旧的n条交易打包成指定高度的区块并落盘
	// 成功后这n条交易才会从mempool中删除；任何失败都不动mempool
	CommitBlock(height uint32, n int) (*types.Block, error)

	SetLogger(logger log.Logger)
}

func NewBlockExec(mempool mempool.Mempool, store Store) BlockExecutor {
	return &blockExecutor{
		mempool: mempool,
		store:   store,
		logger:  log.NewNopLogger(),
	}
}

type blockExecutor struct {
	mempool mempool.Mempool

	store Store

	logger log.Logger
}

// SetLogger implements BlockExecutor
func (exec *blockExecutor) SetLogger(logger log.Logger) {
	exec.logger = logger
}

// CommitBlock implements BlockExecutor
// 顺序是先拷贝快照、落盘成功之后再drain
// 这样落盘一直失败时交易还留在mempool里，下一轮可以重来
func (exec *blockExecutor) CommitBlock(height uint32, n int) (*types.Block, error) {
	if size := exec.mempool.Size(); size < n {
		return nil, ErrNotEnoughTxs{Have: size, Want: n}
	}

	txs := exec.mempool.ReapMaxTxs(n)
	block := types.MakeBlock(height, txs)

	if err := exec.saveWithRetry(block); err != nil {
		return nil, err
	}

	if _, err := exec.mempool.DrainFront(n); err != nil {
		// reap和drain之间mempool只增不减，理论上到不了这里
		exec.logger.Error("drain after persist failed", "height", height, "err", err)
		return nil, err
	}

	exec.logger.Info("committed block", "height", height, "txs", len(block.Txs))
	return block, nil
}

func (exec *blockExecutor) saveWithRetry(block *types.Block) error {
	var last error
	backoff := persistBackoff
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if last = exec.store.SaveBlock(block); last == nil {
			return nil
		}
		exec.logger.Error("save block failed", "height", block.Height, "attempt", attempt, "err", last)
		if attempt < persistAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return ErrPersistFailed{Height: block.Height, Attempts: persistAttempts, Last: last}
}
