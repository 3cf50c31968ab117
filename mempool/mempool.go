package mempool

import (
	"educoin_demo/types"
)

const (
	// UnknownPeer is the sender of a tx that did not arrive over gossip
	// (e.g. stdin or RPC).
	UnknownPeer = ""
)

type Mempool interface {
	// AddTx 将一条已经解码的交易追加到mempool尾部
	// 返回追加后的长度，caller根据这个值做batch的edge-trigger判断
	AddTx(tx *types.SignedTx, txInfo TxInfo) (int, error)

	// ReapMaxTxs 按插入顺序拷贝出最多max条交易，不删除
	// 如果max是负数则表示取出mempool所有的交易
	ReapMaxTxs(max int) types.Txs

	// DrainFront removes and returns the oldest n transactions in insertion
	// order. Returns ErrDrainUnderflow (mempool untouched) when fewer than n
	// are buffered; it never panics.
	DrainFront(n int) (types.Txs, error)

	// Size返回mempool中的交易条数
	Size() int

	// TxsBytes返回mempool所有交易的byte大小
	TxsBytes() int64

	// Flush将mempool中的所有交易清空
	Flush()
}

//--------------------------------------------------------------------------------

// TxInfo are parameters that get passed when attempting to add a tx to the
// mempool.
type TxInfo struct {
	// SenderPeerID is the gossip peer the tx arrived from, used for logging.
	// Empty for locally authored transactions.
	SenderPeerID string
}
