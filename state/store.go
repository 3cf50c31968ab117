package state

import "educoin_demo/types"

// 区块持久化接口
type Store interface {
	// SaveBlock 将一个区块落盘，失败时区块不会部分写入
	SaveBlock(block *types.Block) error

	// LoadBlock 读取指定高度的区块，没有时返回(nil, nil)
	LoadBlock(height uint32) (*types.Block, error)

	// Height 返回最后落盘的区块高度，0表示还没有区块
	Height() uint32
}
