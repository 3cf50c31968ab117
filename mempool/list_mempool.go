package mempool

import (
	"sync"
	"sync/atomic"

	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"

	"educoin_demo/types"
)

func NewListMempool(config *cfg.MempoolConfig, options ...ListMempoolOption) *ListMempool {
	mem := &ListMempool{
		config: config,
		txs:    clist.New(),
		txsMap: make(map[[types.TxKeySize]byte]*clist.CElement),
		metric: newMemMetric(),
		logger: log.NewNopLogger(),
	}

	for _, option := range options {
		option(mem)
	}

	return mem
}

// ListMempool 共享的有序交易缓冲
// 所有方法整个持锁执行，方法之间不会交错；锁内不做签名验证和IO
type ListMempool struct {
	// Atomic integers
	txsBytes int64 // total size of mempool, in bytes

	config *cfg.MempoolConfig

	mtx sync.Mutex

	txs *clist.CList

	// 快速查询表，挡掉gossip重复投递的交易
	txsMap map[[types.TxKeySize]byte]*clist.CElement

	metric *memMetric

	logger log.Logger
}

type ListMempoolOption func(mempool *ListMempool)

func (mem *ListMempool) SetLogger(logger log.Logger) {
	mem.logger = logger
}

// Metric exposes the mempool metric item for registration in a MetricSet.
func (mem *ListMempool) Metric() *memMetric {
	return mem.metric
}

// AddTx implements Mempool
func (mem *ListMempool) AddTx(tx *types.SignedTx, txInfo TxInfo) (int, error) {
	mem.mtx.Lock()
	defer mem.mtx.Unlock()

	key := types.TxKey(tx)
	if _, ok := mem.txsMap[key]; ok {
		return mem.txs.Len(), ErrTxInMap
	}

	if mem.config.Size > 0 && mem.txs.Len() >= mem.config.Size {
		return mem.txs.Len(), ErrMempoolIsFull{NumTxs: mem.txs.Len(), MaxTxs: mem.config.Size}
	}

	e := mem.txs.PushBack(tx)
	mem.txsMap[key] = e
	atomic.AddInt64(&mem.txsBytes, tx.ComputeSize())

	size := mem.txs.Len()
	mem.metric.MarkTxsNum(size)
	mem.metric.MarkTotalTxsBytes(atomic.LoadInt64(&mem.txsBytes))
	mem.logger.Debug("added tx", "tx", tx, "sender", txInfo.SenderPeerID, "size", size)

	return size, nil
}

// ReapMaxTxs implements Mempool
func (mem *ListMempool) ReapMaxTxs(max int) types.Txs {
	mem.mtx.Lock()
	defer mem.mtx.Unlock()

	if max < 0 || max > mem.txs.Len() {
		max = mem.txs.Len()
	}

	txs := make(types.Txs, 0, max)
	for e := mem.txs.Front(); e != nil && len(txs) < max; e = e.Next() {
		txs = append(txs, e.Value.(*types.SignedTx))
	}
	return txs
}

// DrainFront implements Mempool
// 个数不足时返回ErrDrainUnderflow，mempool保持原样 - 绝不panic
func (mem *ListMempool) DrainFront(n int) (types.Txs, error) {
	mem.mtx.Lock()
	defer mem.mtx.Unlock()

	if n > mem.txs.Len() {
		return nil, ErrDrainUnderflow
	}

	txs := make(types.Txs, 0, n)
	for i := 0; i < n; i++ {
		e := mem.txs.Front()
		tx := e.Value.(*types.SignedTx)
		mem.txs.Remove(e)
		e.DetachPrev()

		delete(mem.txsMap, types.TxKey(tx))
		atomic.AddInt64(&mem.txsBytes, -tx.ComputeSize())
		txs = append(txs, tx)
	}

	mem.metric.MarkTxsNum(mem.txs.Len())
	mem.metric.MarkTotalTxsBytes(atomic.LoadInt64(&mem.txsBytes))
	mem.metric.IncrDrainedBatches()

	return txs, nil
}

// Size implements Mempool
func (mem *ListMempool) Size() int {
	mem.mtx.Lock()
	defer mem.mtx.Unlock()
	return mem.txs.Len()
}

// TxsBytes implements Mempool
func (mem *ListMempool) TxsBytes() int64 {
	return atomic.LoadInt64(&mem.txsBytes)
}

// Flush implements Mempool
func (mem *ListMempool) Flush() {
	mem.mtx.Lock()
	defer mem.mtx.Unlock()

	for e := mem.txs.Front(); e != nil; e = e.Next() {
		mem.txs.Remove(e)
		e.DetachPrev()
	}
	mem.txsMap = make(map[[types.TxKeySize]byte]*clist.CElement)
	atomic.StoreInt64(&mem.txsBytes, 0)

	mem.metric.MarkTxsNum(0)
	mem.metric.MarkTotalTxsBytes(0)
}
