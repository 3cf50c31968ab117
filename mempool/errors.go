package mempool

import (
	"errors"
	"fmt"
)

var (
	// ErrTxInMap is returned to the client if we saw tx earlier
	ErrTxInMap = errors.New("tx already exists in map")

	// ErrDrainUnderflow is returned when a drain asks for more txs than are
	// buffered. Callers must treat this as "skip this round", never retry
	// blindly.
	ErrDrainUnderflow = errors.New("drain exceeds mempool size")
)

// ErrMempoolIsFull defines an error where there are too many txs in the
// mempool.
type ErrMempoolIsFull struct {
	NumTxs int
	MaxTxs int
}

func (e ErrMempoolIsFull) Error() string {
	return fmt.Sprintf("mempool is full: number of txs %d (max: %d)", e.NumTxs, e.MaxTxs)
}
