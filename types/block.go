package types

import (
	"errors"
	"fmt"
	"strings"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// Block 一个round落盘的区块：固定一批交易加上高度
// 只是本地的产物，不同节点同一高度的区块内容可以不同
type Block struct {
	Height uint32 `json:"height"`
	Txs    Txs    `json:"txs"`
}

func MakeBlock(height uint32, txs Txs) *Block {
	return &Block{
		Height: height,
		Txs:    txs,
	}
}

func (b *Block) Hash() []byte {
	return b.Txs.Hash()
}

func (b *Block) ValidateBasic() error {
	if b == nil {
		return errors.New("nil block")
	}
	if b.Height == 0 {
		return errors.New("block height must be positive")
	}
	if len(b.Txs) == 0 {
		return errors.New("block carries no transactions")
	}
	return nil
}

// Dump renders the textual block record written to disk: a header line
// followed by one line per transaction, in mempool insertion order.
func (b *Block) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "block height=%d txs=%d hash=%X\n", b.Height, len(b.Txs), tmbytes.Fingerprint(b.Hash()))
	for i, tx := range b.Txs {
		fmt.Fprintf(&sb, "%4d: %v\n", i, tx)
	}
	return sb.String()
}

func (b *Block) String() string {
	if b == nil {
		return "nil-Block"
	}
	return fmt.Sprintf("Block{%d #%d}", b.Height, len(b.Txs))
}
