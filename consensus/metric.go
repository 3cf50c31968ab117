package consensus

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

func newConsensusMetric() *consensusMetric {
	return &consensusMetric{Height: 1}
}

type consensusMetric struct {
	mtx             sync.RWMutex
	Height          uint32    `json:"height"`            // 当前正在凑的高度
	KnownPeers      int       `json:"known_peers"`       // 当前已知的peer数
	Voters          int       `json:"voters"`            // 本高度已经收到的投票数
	VotedThisHeight bool      `json:"voted_this_height"` // 本节点在本高度是否投过票
	CommittedBlocks int64     `json:"committed_blocks"`  // 累计落盘的区块数
	StalledRounds   int64     `json:"stalled_rounds"`    // 落盘失败导致round搁置的次数
	LastBlockTime   time.Time `json:"last_block_time"`
}

func (cm *consensusMetric) JSONString() string {
	cm.mtx.RLock()
	defer cm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(cm)
	return s
}

func (cm *consensusMetric) snapshotHeight() uint32 {
	cm.mtx.RLock()
	defer cm.mtx.RUnlock()
	return cm.Height
}

func (cm *consensusMetric) MarkHeight(height uint32) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Height = height
}

func (cm *consensusMetric) MarkKnownPeers(n int) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.KnownPeers = n
}

func (cm *consensusMetric) MarkVoters(n int) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Voters = n
}

func (cm *consensusMetric) MarkVoted(voted bool) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.VotedThisHeight = voted
}

func (cm *consensusMetric) IncrCommittedBlocks() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.CommittedBlocks++
	cm.LastBlockTime = time.Now()
}

func (cm *consensusMetric) IncrStalledRounds() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.StalledRounds++
}
