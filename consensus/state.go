package consensus

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/cmap"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	"educoin_demo/gossip"
	"educoin_demo/mempool"
	"educoin_demo/state"
	"educoin_demo/types"
)

const (
	// publish失败后的重发上限，超过直接丢弃
	maxPublishAttempts = 5

	// 空闲时重发pending消息的间隔
	flushInterval = time.Second
)

// ErrConsensusStopped is returned by SubmitTx after the service has quit.
var ErrConsensusStopped = errors.New("consensus has stopped")

// Publisher 共识只需要网络层的发布能力
type Publisher interface {
	Publish(topic string, data []byte) error
}

// Signer 用节点的账户私钥给载荷签名并套上编码
type Signer interface {
	SignMessage(payload []byte) (*types.SignedTx, error)
}

type pendingMsg struct {
	topic    string
	data     []byte
	attempts int
}

type ConsensusOption func(*ConsensusState)

func NewConsensusState(
	mem mempool.Mempool,
	blockExec state.BlockExecutor,
	publisher Publisher,
	signer Signer,
	localPeerID string,
	events <-chan gossip.Event,
	options ...ConsensusOption,
) *ConsensusState {
	cs := &ConsensusState{
		height:       1,
		mempool:      mem,
		voters:       NewVoterSet(),
		peers:        cmap.NewCMap(),
		blockExec:    blockExec,
		publisher:    publisher,
		signer:       signer,
		localPeerID:  localPeerID,
		gossipEvents: events,
		localTxQueue: make(chan []byte),
		metric:       newConsensusMetric(),
	}
	cs.BaseService = *service.NewBaseService(nil, "CONSENSUS", cs)

	for _, opt := range options {
		opt(cs)
	}

	return cs
}

// SetInitialHeight 重启后从blockStore恢复高度
func SetInitialHeight(height uint32) ConsensusOption {
	return func(cs *ConsensusState) {
		if height > 0 {
			cs.height = height
			cs.metric.MarkHeight(height)
		}
	}
}

// 共识状态机
// 凑交易 -> 验证 -> 投票 -> 全体已知peer都投票后落盘，然后进入下一个高度
type ConsensusState struct {
	service.BaseService

	// 所有内部状态只在receiveRoutine一个goroutine里变更
	height          uint32
	votedThisHeight bool

	mempool mempool.Mempool

	voters *VoterSet

	// 当前已知的peer，value不使用
	peers *cmap.CMap

	blockExec state.BlockExecutor

	publisher Publisher

	signer Signer

	localPeerID string

	// 通信管道
	gossipEvents <-chan gossip.Event // 网络层的消息和peer事件
	localTxQueue chan []byte         // stdin/rpc提交的本地交易载荷

	// publish失败的消息排队重发
	pendingPublish []pendingMsg

	metric *consensusMetric
}

func (cs *ConsensusState) SetLogger(logger log.Logger) {
	cs.Logger = logger
}

// Metric exposes the consensus metric item for registration in a MetricSet.
func (cs *ConsensusState) Metric() *consensusMetric {
	return cs.metric
}

func (cs *ConsensusState) OnStart() error {
	go cs.receiveRoutine()
	cs.Logger.Info("consensus receive routine started.", "height", cs.height)
	return nil
}

func (cs *ConsensusState) OnStop() {
	cs.Logger.Info("consensus stopped.")
}

// SubmitTx 接收一条本地生成的交易载荷，由stdin和rpc调用
// 交易会被签名、广播并加入自己的mempool
func (cs *ConsensusState) SubmitTx(payload []byte) error {
	select {
	case cs.localTxQueue <- payload:
		return nil
	case <-cs.Quit():
		return ErrConsensusStopped
	}
}

// Height 当前正在凑的高度
func (cs *ConsensusState) Height() uint32 {
	return cs.metric.snapshotHeight()
}

// KnownPeers 当前已知的peer id列表
func (cs *ConsensusState) KnownPeers() []string {
	keys := cs.peers.Keys()
	sort.Strings(keys)
	return keys
}

// Voters 本高度已经投票的peer id列表
func (cs *ConsensusState) Voters() []string {
	return cs.voters.List()
}

// receiveRoutine负责接收所有的消息
// 每次循环先重发pending的消息、再检查本轮是否可以落盘，然后阻塞等下一个事件
func (cs *ConsensusState) receiveRoutine() {
	cs.Logger.Debug("consensus receive routine starts.")
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		cs.flushPending()
		cs.checkRound()

		select {
		case <-cs.Quit():
			cs.Logger.Info("receiveRoutine quit.")
			return

		case payload := <-cs.localTxQueue:
			cs.handleLocalTx(payload)

		case ev := <-cs.gossipEvents:
			cs.handleEvent(ev)

		case <-ticker.C:
			// 空转一圈，让pending的publish有机会重发
		}
	}
}

// handleLocalTx 签名、广播并入池一条本地交易
func (cs *ConsensusState) handleLocalTx(payload []byte) {
	tx, err := cs.signer.SignMessage(payload)
	if err != nil {
		cs.Logger.Error("failed to sign local tx", "err", err)
		return
	}

	cs.publish(gossip.TopicTransaction, tx.WireBytes())
	cs.addTxAndMaybeVote(tx, mempool.UnknownPeer)
}

// handleEvent 根据不同的事件类型进行操作
func (cs *ConsensusState) handleEvent(ev gossip.Event) {
	switch ev := ev.(type) {
	case gossip.MessageEvent:
		switch ev.Topic {
		case gossip.TopicTransaction:
			tx, err := types.TxFromWire(ev.ID, ev.Body)
			if err != nil {
				cs.Logger.Error("received malformed tx", "src", ev.Source, "err", err)
				return
			}
			cs.addTxAndMaybeVote(tx, ev.Source)

		case gossip.TopicVote:
			envelope, err := types.TxFromWire(ev.ID, ev.Body)
			if err != nil {
				cs.Logger.Error("received malformed vote", "src", ev.Source, "err", err)
				return
			}
			voter, added, err := cs.voters.RecordVote(envelope, cs.height, cs.eligibleVoter)
			if err != nil {
				cs.Logger.Debug("vote rejected", "src", ev.Source, "err", err)
				return
			}
			if added {
				cs.Logger.Info("recorded vote", "voter", voter, "height", cs.height,
					"voters", cs.voters.Size(), "peers", cs.peers.Size())
				cs.metric.MarkVoters(cs.voters.Size())
			}

		default:
			cs.Logger.Debug("message on unknown topic", "topic", ev.Topic)
		}

	case gossip.PeerDiscoveredEvent:
		if ev.PeerID == cs.localPeerID || cs.peers.Has(ev.PeerID) {
			return
		}
		cs.peers.Set(ev.PeerID, struct{}{})
		cs.metric.MarkKnownPeers(cs.peers.Size())
		cs.Logger.Info("peer discovered", "peer", ev.PeerID, "peers", cs.peers.Size())

	case gossip.PeerExpiredEvent:
		if !cs.peers.Has(ev.PeerID) {
			return
		}
		cs.peers.Delete(ev.PeerID)
		// peer消失后它的投票一并作废，voters永远不会大于已知peer集合
		cs.voters.Remove(ev.PeerID)
		cs.metric.MarkKnownPeers(cs.peers.Size())
		cs.metric.MarkVoters(cs.voters.Size())
		cs.Logger.Info("peer expired", "peer", ev.PeerID, "peers", cs.peers.Size())

	case gossip.ListenAddrEvent:
		cs.Logger.Info("listening", "addr", ev.Addr)

	default:
		cs.Logger.Error("unhandled gossip event", "event", ev)
	}
}

// eligibleVoter 只有当前已知的peer有投票资格
// 自己的投票走votedThisHeight标记，不进voters
func (cs *ConsensusState) eligibleVoter(peerID string) bool {
	return peerID != cs.localPeerID && cs.peers.Has(peerID)
}

// addTxAndMaybeVote 入池一条交易，跨过batch线且本高度还没投票时尝试投票
func (cs *ConsensusState) addTxAndMaybeVote(tx *types.SignedTx, sender string) {
	size, err := cs.mempool.AddTx(tx, mempool.TxInfo{SenderPeerID: sender})
	if err != nil {
		switch err {
		case mempool.ErrTxInMap:
			cs.Logger.Debug("duplicate tx ignored", "tx", tx, "sender", sender)
		default:
			cs.Logger.Error("failed to add tx", "tx", tx, "sender", sender, "err", err)
		}
		return
	}

	if size >= BatchSize && !cs.votedThisHeight {
		cs.tryVote()
	}
}

// tryVote 验证最旧的一批交易，全部合法才投票
// 验证失败不设置votedThisHeight，后续mempool变化时还有机会重试
func (cs *ConsensusState) tryVote() {
	txs := cs.mempool.ReapMaxTxs(BatchSize)
	if len(txs) < BatchSize {
		return
	}

	if valid := ValidateBatch(txs); valid != BatchSize {
		cs.Logger.Error("batch validation failed, withholding vote",
			"height", cs.height, "valid", valid, "batch", BatchSize)
		return
	}

	vote := types.NewVote(cs.height, cs.localPeerID)
	envelope, err := cs.signer.SignMessage(vote.SignPayload())
	if err != nil {
		cs.Logger.Error("failed to sign vote", "height", cs.height, "err", err)
		return
	}

	cs.votedThisHeight = true
	cs.metric.MarkVoted(true)
	cs.publish(gossip.TopicVote, envelope.WireBytes())
	cs.Logger.Info("cast vote", "height", cs.height, "peers", cs.peers.Size())
}

// checkRound 全体已知peer都投票且自己也投过票时落盘并进入下一个高度
// 已知peer为空时永远不落盘，单机不出块
func (cs *ConsensusState) checkRound() {
	if !cs.quorumReached() {
		return
	}

	block, err := cs.blockExec.CommitBlock(cs.height, BatchSize)
	if err != nil {
		switch err.(type) {
		case state.ErrNotEnoughTxs:
			// 理论上投票之后mempool只增不减，保险起见跳过本轮等交易补齐
			cs.Logger.Error("quorum reached but mempool is short, waiting", "height", cs.height, "err", err)
		case state.ErrPersistFailed:
			cs.Logger.Error("block persist failed, round stalled", "height", cs.height, "err", err)
			cs.metric.IncrStalledRounds()
		default:
			cs.Logger.Error("commit failed", "height", cs.height, "err", err)
		}
		return
	}

	cs.Logger.Info("round complete", "height", cs.height,
		"block", block, "voters", cs.voters.Size())

	cs.voters.Clear()
	cs.votedThisHeight = false
	cs.height++
	cs.metric.IncrCommittedBlocks()
	cs.metric.MarkHeight(cs.height)
	cs.metric.MarkVoters(0)
	cs.metric.MarkVoted(false)

	// 池子里积压的交易够下一批时马上接着投票，不用等新交易进来
	if cs.mempool.Size() >= BatchSize {
		cs.tryVote()
	}
}

// quorumReached 要求自己投过票并且每一个已知peer都投了票
func (cs *ConsensusState) quorumReached() bool {
	if !cs.votedThisHeight {
		return false
	}
	peers := cs.peers.Keys()
	if len(peers) == 0 {
		return false
	}
	for _, peerID := range peers {
		if !cs.voters.Has(peerID) {
			return false
		}
	}
	return true
}

// publish 失败的消息进pending队列等下次循环重发
func (cs *ConsensusState) publish(topic string, data []byte) {
	if err := cs.publisher.Publish(topic, data); err != nil {
		cs.Logger.Error("publish failed, queued for retry", "topic", topic, "err", err)
		cs.pendingPublish = append(cs.pendingPublish, pendingMsg{topic: topic, data: data, attempts: 1})
	}
}

func (cs *ConsensusState) flushPending() {
	if len(cs.pendingPublish) == 0 {
		return
	}

	remaining := cs.pendingPublish[:0]
	for _, msg := range cs.pendingPublish {
		if err := cs.publisher.Publish(msg.topic, msg.data); err == nil {
			continue
		}
		msg.attempts++
		if msg.attempts >= maxPublishAttempts {
			cs.Logger.Error("dropping message after repeated publish failures",
				"topic", msg.topic, "attempts", msg.attempts)
			continue
		}
		remaining = append(remaining, msg)
	}
	cs.pendingPublish = remaining
}
