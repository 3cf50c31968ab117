package consensus

import (
	"crypto/rand"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/go-kit/kit/log/term"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/libs/log"

	"educoin_demo/gossip"
	mempl "educoin_demo/mempool"
	bkstate "educoin_demo/state"
	"educoin_demo/types"
)

const testLocalPeer = "localpeer"

type cleanup func()

// ----- test doubles -----

// fakePublisher 记录所有publish，可以配置前几次失败
type fakePublisher struct {
	mtx      sync.Mutex
	failures int
	calls    int
	byTopic  map[string][][]byte
}

func newFakePublisher(failures int) *fakePublisher {
	return &fakePublisher{failures: failures, byTopic: make(map[string][][]byte)}
}

func (fp *fakePublisher) Publish(topic string, data []byte) error {
	fp.mtx.Lock()
	defer fp.mtx.Unlock()
	fp.calls++
	if fp.calls <= fp.failures {
		return fmt.Errorf("network is down")
	}
	fp.byTopic[topic] = append(fp.byTopic[topic], append([]byte(nil), data...))
	return nil
}

func (fp *fakePublisher) count(topic string) int {
	fp.mtx.Lock()
	defer fp.mtx.Unlock()
	return len(fp.byTopic[topic])
}

func (fp *fakePublisher) last(topic string) []byte {
	fp.mtx.Lock()
	defer fp.mtx.Unlock()
	msgs := fp.byTopic[topic]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// fakeSigner 用固定的ed25519私钥签名
type fakeSigner struct {
	privKey ed25519.PrivKey
}

func (fs *fakeSigner) SignMessage(payload []byte) (*types.SignedTx, error) {
	return types.NewSignedTx(payload, fs.privKey)
}

// memStore 落盘到内存，记录保存的区块
type memStore struct {
	mtx    sync.Mutex
	blocks map[uint32]*types.Block
}

func newMemStore() *memStore {
	return &memStore{blocks: make(map[uint32]*types.Block)}
}

func (ms *memStore) SaveBlock(block *types.Block) error {
	ms.mtx.Lock()
	defer ms.mtx.Unlock()
	ms.blocks[block.Height] = block
	return nil
}

func (ms *memStore) LoadBlock(height uint32) (*types.Block, error) {
	ms.mtx.Lock()
	defer ms.mtx.Unlock()
	return ms.blocks[height], nil
}

func (ms *memStore) Height() uint32 {
	ms.mtx.Lock()
	defer ms.mtx.Unlock()
	var max uint32
	for h := range ms.blocks {
		if h > max {
			max = h
		}
	}
	return max
}

// ----- harness -----

// 按高度给日志上色，多节点调试时容易分辨
func consensusLogger() log.Logger {
	return log.TestingLoggerWithColorFn(func(keyvals ...interface{}) term.FgBgColor {
		for i := 0; i < len(keyvals)-1; i += 2 {
			if keyvals[i] == "height" {
				if h, ok := keyvals[i+1].(uint32); ok {
					return term.FgBgColor{Fg: term.Color(uint8(h%6) + 2)}
				}
			}
		}
		return term.FgBgColor{}
	})
}

type consensusTest struct {
	cs      *ConsensusState
	events  chan gossip.Event
	pub     *fakePublisher
	mempool mempl.Mempool
	store   *memStore
}

func newConsensusTest(t *testing.T, pub *fakePublisher) (*consensusTest, cleanup) {
	config := cfg.ResetTestRoot("consensus_test")
	logger := consensusLogger()

	mempool := mempl.NewListMempool(config.Mempool)
	mempool.SetLogger(logger)

	store := newMemStore()
	blockExec := bkstate.NewBlockExec(mempool, store)
	blockExec.SetLogger(logger)

	events := make(chan gossip.Event, 64)
	signer := &fakeSigner{privKey: ed25519.GenPrivKey()}

	cs := NewConsensusState(mempool, blockExec, pub, signer, testLocalPeer, events)
	cs.SetLogger(logger)
	require.NoError(t, cs.Start())

	ct := &consensusTest{cs: cs, events: events, pub: pub, mempool: mempool, store: store}
	return ct, func() {
		if err := cs.Stop(); err != nil {
			t.Log(err)
		}
		os.RemoveAll(config.RootDir)
	}
}

func (ct *consensusTest) submitTxs(t *testing.T, count int) {
	for i := 0; i < count; i++ {
		payload := make([]byte, 16)
		_, err := rand.Read(payload)
		require.NoError(t, err)
		require.NoError(t, ct.cs.SubmitTx(payload))
	}
}

// peerVote 用另一个节点的身份对指定高度投票
func peerVote(t *testing.T, height uint32, peerID string) gossip.Event {
	envelope, err := types.NewSignedTx(types.NewVote(height, peerID).SignPayload(), ed25519.GenPrivKey())
	require.NoError(t, err)
	return gossip.MessageEvent{
		Source: peerID,
		Topic:  gossip.TopicVote,
		ID:     envelope.MessageID(),
		Body:   envelope.Payload,
	}
}

// ----- tests -----

func TestFullBatchTriggersVote(t *testing.T) {
	ct, clean := newConsensusTest(t, newFakePublisher(0))
	defer clean()

	ct.events <- gossip.PeerDiscoveredEvent{PeerID: "peerB"}
	ct.submitTxs(t, BatchSize)

	require.Eventually(t, func() bool {
		return ct.pub.count(gossip.TopicVote) == 1
	}, 5*time.Second, 10*time.Millisecond, "a full valid batch must produce exactly one vote")

	// 投出去的vote编码能解回来，高度和peer id正确
	wire := ct.pub.last(gossip.TopicVote)
	envelope, err := types.TxFromWire(wire[:types.WireOverhead], wire[types.WireOverhead:])
	require.NoError(t, err)
	assert.True(t, envelope.Verify())
	vote, err := types.VoteFromPayload(envelope.Payload)
	require.NoError(t, err)
	assert.EqualValues(t, 1, vote.Height)
	assert.Equal(t, testLocalPeer, vote.PeerID)

	// 交易也都广播出去了
	assert.Equal(t, BatchSize, ct.pub.count(gossip.TopicTransaction))
}

func TestInvalidTxWithholdsVote(t *testing.T) {
	ct, clean := newConsensusTest(t, newFakePublisher(0))
	defer clean()

	ct.events <- gossip.PeerDiscoveredEvent{PeerID: "peerB"}

	// 9条本地合法交易加1条签名被篡改的网络交易
	ct.submitTxs(t, BatchSize-1)

	bad, err := types.NewSignedTx([]byte("corrupted on the way"), ed25519.GenPrivKey())
	require.NoError(t, err)
	wire := bad.WireBytes()
	wire[types.PubKeySize] ^= 0x01 // 翻一个签名bit
	ct.events <- gossip.MessageEvent{
		Source: "peerB",
		Topic:  gossip.TopicTransaction,
		ID:     wire[:types.WireOverhead],
		Body:   wire[types.WireOverhead:],
	}

	require.Eventually(t, func() bool {
		return ct.mempool.Size() == BatchSize
	}, 5*time.Second, 10*time.Millisecond)

	// batch凑齐了但验证不过，不能投票
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, ct.pub.count(gossip.TopicVote))
	assert.EqualValues(t, 1, ct.cs.Height())
}

func TestZeroPeersNeverFinalizes(t *testing.T) {
	ct, clean := newConsensusTest(t, newFakePublisher(0))
	defer clean()

	ct.submitTxs(t, BatchSize)

	require.Eventually(t, func() bool {
		return ct.pub.count(gossip.TopicVote) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// 没有已知peer时自己投了票也不能落盘
	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 1, ct.cs.Height())
	assert.EqualValues(t, 0, ct.store.Height())
	assert.Equal(t, BatchSize, ct.mempool.Size())
}

func TestQuorumCommitsBlock(t *testing.T) {
	ct, clean := newConsensusTest(t, newFakePublisher(0))
	defer clean()

	ct.events <- gossip.PeerDiscoveredEvent{PeerID: "peerB"}
	ct.submitTxs(t, BatchSize)

	require.Eventually(t, func() bool {
		return ct.pub.count(gossip.TopicVote) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// 唯一的已知peer投票后达成quorum
	ct.events <- peerVote(t, 1, "peerB")

	require.Eventually(t, func() bool {
		return ct.cs.Height() == 2
	}, 5*time.Second, 10*time.Millisecond, "all known peers voted, the round must complete")

	block, err := ct.store.LoadBlock(1)
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, BatchSize, len(block.Txs))

	// 新高度一切清零
	assert.Equal(t, 0, ct.mempool.Size())
	assert.Empty(t, ct.cs.Voters())
}

func TestVoteForWrongHeightIgnored(t *testing.T) {
	ct, clean := newConsensusTest(t, newFakePublisher(0))
	defer clean()

	ct.events <- gossip.PeerDiscoveredEvent{PeerID: "peerB"}
	ct.submitTxs(t, BatchSize)

	require.Eventually(t, func() bool {
		return ct.pub.count(gossip.TopicVote) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// 高度对不上的投票不算数
	ct.events <- peerVote(t, 5, "peerB")

	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 1, ct.cs.Height())
	assert.Empty(t, ct.cs.Voters())
}

func TestVoteFromUnknownPeerIgnored(t *testing.T) {
	ct, clean := newConsensusTest(t, newFakePublisher(0))
	defer clean()

	// 一个peer都没发现时，签名合法的冒名投票也不能登记
	ct.events <- peerVote(t, 1, "ghostA")
	ct.events <- peerVote(t, 1, "ghostB")

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, ct.cs.Voters())
	assert.LessOrEqual(t, len(ct.cs.Voters()), len(ct.cs.KnownPeers()))

	// 本节点的peer id也不进voters，本地投票只记votedThisHeight
	ct.events <- gossip.PeerDiscoveredEvent{PeerID: "peerB"}
	ct.events <- peerVote(t, 1, testLocalPeer)

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, ct.cs.Voters())
	assert.EqualValues(t, 1, ct.cs.Height())
}

func TestBackloggedBatchVotesNextHeight(t *testing.T) {
	ct, clean := newConsensusTest(t, newFakePublisher(0))
	defer clean()

	ct.events <- gossip.PeerDiscoveredEvent{PeerID: "peerB"}
	ct.submitTxs(t, 2*BatchSize)

	require.Eventually(t, func() bool {
		return ct.pub.count(gossip.TopicVote) == 1
	}, 5*time.Second, 10*time.Millisecond)

	ct.events <- peerVote(t, 1, "peerB")

	// 落盘后池子里还压着一整批，不等新交易就要对下一个高度投票
	require.Eventually(t, func() bool {
		return ct.cs.Height() == 2 && ct.pub.count(gossip.TopicVote) == 2
	}, 5*time.Second, 10*time.Millisecond, "a backlogged full batch must trigger a vote right after commit")

	wire := ct.pub.last(gossip.TopicVote)
	envelope, err := types.TxFromWire(wire[:types.WireOverhead], wire[types.WireOverhead:])
	require.NoError(t, err)
	vote, err := types.VoteFromPayload(envelope.Payload)
	require.NoError(t, err)
	assert.EqualValues(t, 2, vote.Height)
	assert.Equal(t, BatchSize, ct.mempool.Size())
}

func TestPeerExpiryRemovesVote(t *testing.T) {
	ct, clean := newConsensusTest(t, newFakePublisher(0))
	defer clean()

	ct.events <- gossip.PeerDiscoveredEvent{PeerID: "peerA"}
	ct.events <- gossip.PeerDiscoveredEvent{PeerID: "peerB"}
	ct.submitTxs(t, BatchSize)

	require.Eventually(t, func() bool {
		return ct.pub.count(gossip.TopicVote) == 1
	}, 5*time.Second, 10*time.Millisecond)

	ct.events <- peerVote(t, 1, "peerA")
	require.Eventually(t, func() bool {
		return len(ct.cs.Voters()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// peerA掉线，它的投票跟着作废，quorum分母变成只剩peerB
	ct.events <- gossip.PeerExpiredEvent{PeerID: "peerA"}
	require.Eventually(t, func() bool {
		return len(ct.cs.Voters()) == 0 && len(ct.cs.KnownPeers()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, ct.cs.Height())

	// 剩下的peerB投票后round才能走完
	ct.events <- peerVote(t, 1, "peerB")
	require.Eventually(t, func() bool {
		return ct.cs.Height() == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPublishRetryQueue(t *testing.T) {
	// 前两次publish失败，消息进pending队列后台重发
	ct, clean := newConsensusTest(t, newFakePublisher(2))
	defer clean()

	require.NoError(t, ct.cs.SubmitTx([]byte("stubborn tx")))

	require.Eventually(t, func() bool {
		return ct.pub.count(gossip.TopicTransaction) == 1
	}, 5*time.Second, 10*time.Millisecond, "failed publishes must be retried")
}

func TestReceiveRoutineStops(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	ct, clean := newConsensusTest(t, newFakePublisher(0))
	ct.submitTxs(t, 3)
	clean()
}
