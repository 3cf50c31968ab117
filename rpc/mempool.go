package rpc

import (
	"errors"

	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultBroadcastTx struct {
	Queued bool `json:"queued"`
}

// BroadcastTx 接收一条交易载荷，交给共识签名、广播并入池
// 异步语义，返回时交易只是进了队列
func BroadcastTx(ctx *rpctypes.Context, payload string) (*ResultBroadcastTx, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty tx payload")
	}

	if err := env.Consensus.SubmitTx([]byte(payload)); err != nil {
		return nil, err
	}
	return &ResultBroadcastTx{Queued: true}, nil
}

type ResultUnconfirmedTxs struct {
	Total      int   `json:"total"`
	TotalBytes int64 `json:"total_bytes"`
}

// UnconfirmedTxs 交易池里还没打包的交易数量和体积
func UnconfirmedTxs(ctx *rpctypes.Context) (*ResultUnconfirmedTxs, error) {
	return &ResultUnconfirmedTxs{
		Total:      env.Mempool.Size(),
		TotalBytes: env.Mempool.TxsBytes(),
	}, nil
}
