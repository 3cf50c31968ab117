package store

import (
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/tempfile"
	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"

	"educoin_demo/types"
)

var lastHeightKey = []byte("last_height")

func NewBlockStore(name, dir string, logger log.Logger) (*BlockStore, error) {
	levelDB, err := leveldb.NewDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open block db %s in %s: %w", name, dir, err)
	}
	return NewBlockStoreWithDB(levelDB, dir, logger), nil
}

func NewBlockStoreWithDB(kvdb tmdb.DB, dir string, logger log.Logger) *BlockStore {
	bs := &BlockStore{kvDB: kvdb, dir: dir, logger: logger}
	bs.height = bs.loadHeight()
	return bs
}

// BlockStore 区块双份落盘：
//   - kvDB里面存block的json编码，重启后可以恢复高度
//   - dir下额外写一份block_{height}.txt的文本记录，方便肉眼diff各节点的账本
type BlockStore struct {
	kvDB tmdb.DB

	// 文本记录的存放目录
	dir string

	mtx    sync.RWMutex
	height uint32 // 最后一个落盘的区块高度，0表示还没有区块

	logger log.Logger
}

// SaveBlock 将一个区块落盘
// 先写kvDB再原子写文本文件，任意一步失败都返回error交给caller重试
func (bs *BlockStore) SaveBlock(block *types.Block) error {
	if err := block.ValidateBasic(); err != nil {
		return err
	}

	raw, err := tmjson.Marshal(block)
	if err != nil {
		return err
	}

	batch := bs.kvDB.NewBatch()
	defer batch.Close()
	if err := batch.Set(blockKey(block.Height), raw); err != nil {
		return err
	}
	if err := batch.Set(lastHeightKey, []byte(strconv.FormatUint(uint64(block.Height), 10))); err != nil {
		return err
	}
	if err := batch.WriteSync(); err != nil {
		return err
	}

	file := filepath.Join(bs.dir, fmt.Sprintf("block_%d.txt", block.Height))
	if err := tempfile.WriteFileAtomic(file, []byte(block.Dump()), 0644); err != nil {
		return err
	}

	bs.mtx.Lock()
	if block.Height > bs.height {
		bs.height = block.Height
	}
	bs.mtx.Unlock()

	bs.logger.Info("saved block", "height", block.Height, "txs", len(block.Txs), "file", file)
	return nil
}

// LoadBlock 从kvDB中读取指定高度的区块，没有则返回nil
func (bs *BlockStore) LoadBlock(height uint32) (*types.Block, error) {
	raw, err := bs.kvDB.Get(blockKey(height))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	block := new(types.Block)
	if err := tmjson.Unmarshal(raw, block); err != nil {
		return nil, err
	}
	return block, nil
}

// Height 返回最后落盘的区块高度
func (bs *BlockStore) Height() uint32 {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	return bs.height
}

func (bs *BlockStore) loadHeight() uint32 {
	raw, err := bs.kvDB.Get(lastHeightKey)
	if err != nil || len(raw) == 0 {
		return 0
	}
	h, err := strconv.ParseUint(string(raw), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(h)
}

func (bs *BlockStore) GetDB() tmdb.DB {
	return bs.kvDB
}

func blockKey(height uint32) []byte {
	return []byte(fmt.Sprintf("block_%d", height))
}
