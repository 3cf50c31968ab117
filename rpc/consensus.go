package rpc

import (
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/bytes"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultStatus struct {
	Height      uint32   `json:"height"`       // 正在凑的高度
	StoreHeight uint32   `json:"store_height"` // 最后落盘的高度
	MempoolSize int      `json:"mempool_size"`
	KnownPeers  []string `json:"known_peers"`
	Voters      []string `json:"voters"`
}

// Status 节点当前的共识状态快照
func Status(ctx *rpctypes.Context) (*ResultStatus, error) {
	return &ResultStatus{
		Height:      env.Consensus.Height(),
		StoreHeight: env.Store.Height(),
		MempoolSize: env.Mempool.Size(),
		KnownPeers:  env.Consensus.KnownPeers(),
		Voters:      env.Consensus.Voters(),
	}, nil
}

type ResultBlock struct {
	Height uint32         `json:"height"`
	TxNum  int            `json:"tx_num"`
	Hash   bytes.HexBytes `json:"hash"`
	Record string         `json:"record"` // 和block_{height}.txt相同的文本
}

// Block 查询一个已落盘的区块
func Block(ctx *rpctypes.Context, height uint32) (*ResultBlock, error) {
	block, err := env.Store.LoadBlock(height)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, errors.Errorf("no block at height %d", height)
	}

	return &ResultBlock{
		Height: block.Height,
		TxNum:  len(block.Txs),
		Hash:   block.Hash(),
		Record: block.Dump(),
	}, nil
}
