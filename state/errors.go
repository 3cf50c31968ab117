package state

import "fmt"

// ErrNotEnoughTxs is returned when a commit is requested while the mempool
// holds fewer transactions than the batch size. The round simply waits.
type ErrNotEnoughTxs struct {
	Have int
	Want int
}

func (e ErrNotEnoughTxs) Error() string {
	return fmt.Sprintf("not enough txs to commit: have %d, want %d", e.Have, e.Want)
}

// ErrPersistFailed is returned after the store rejected a block on every
// retry. The mempool is left untouched so the round can be re-run.
type ErrPersistFailed struct {
	Height   uint32
	Attempts int
	Last     error
}

func (e ErrPersistFailed) Error() string {
	return fmt.Sprintf("persisting block %d failed after %d attempts: %v", e.Height, e.Attempts, e.Last)
}

func (e ErrPersistFailed) Unwrap() error { return e.Last }
