package rpc

import (
	"educoin_demo/consensus"
	"educoin_demo/libs/metric"
	"educoin_demo/mempool"
	"educoin_demo/state"
)

var env *Environment

func SetEnvironment(e *Environment) {
	env = e
}

type Environment struct {
	Mempool   mempool.Mempool
	Consensus *consensus.ConsensusState
	Store     state.Store

	MetricSet *metric.MetricSet
}
