package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpc.RPCFunc{
	"broadcast_tx":    rpc.NewRPCFunc(BroadcastTx, "payload"),
	"status":          rpc.NewRPCFunc(Status, ""),
	"block":           rpc.NewRPCFunc(Block, "height"),
	"unconfirmed_txs": rpc.NewRPCFunc(UnconfirmedTxs, ""),
	"metrics":         rpc.NewRPCFunc(JSONMetrics, "label"),
}
