package gossip

import (
	"bytes"
	"testing"

	pubsub_pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/p2p"

	"educoin_demo/types"
)

func TestMessageIDFromEnvelope(t *testing.T) {
	privKey := ed25519.GenPrivKey()
	tx, err := types.NewSignedTx([]byte("hello ledger"), privKey)
	require.NoError(t, err)

	wire := tx.WireBytes()
	id := messageIDFn(&pubsub_pb.Message{Data: wire})

	// 消息ID必须就是编码里公钥+签名那96个字节
	assert.Equal(t, types.WireOverhead, len(id))
	assert.True(t, bytes.Equal([]byte(id), tx.MessageID()))

	// 同一个节点发的两条不同交易ID不同，不会被gossip去重合并
	tx2, err := types.NewSignedTx([]byte("another tx"), privKey)
	require.NoError(t, err)
	id2 := messageIDFn(&pubsub_pb.Message{Data: tx2.WireBytes()})
	assert.NotEqual(t, id, id2)
}

func TestMessageIDShortMessage(t *testing.T) {
	// 不满一个编码头的消息退化成hash，不能panic
	id := messageIDFn(&pubsub_pb.Message{Data: []byte("tiny")})
	assert.NotEmpty(t, id)

	empty := messageIDFn(&pubsub_pb.Message{Data: nil})
	assert.NotEmpty(t, empty)
}

func TestDerivePeerID(t *testing.T) {
	nodeKey := &p2p.NodeKey{PrivKey: ed25519.GenPrivKey()}

	id, err := DerivePeerID(nodeKey)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// 推导是确定的
	again, err := DerivePeerID(nodeKey)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	// 不同的key推导出不同的id
	other, err := DerivePeerID(&p2p.NodeKey{PrivKey: ed25519.GenPrivKey()})
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestSwitchLocalPeerIDBeforeStart(t *testing.T) {
	nodeKey := &p2p.NodeKey{PrivKey: ed25519.GenPrivKey()}
	sw, err := NewSwitch(&Config{ListenAddr: "/ip4/127.0.0.1/tcp/0"}, nodeKey)
	require.NoError(t, err)

	want, err := DerivePeerID(nodeKey)
	require.NoError(t, err)
	assert.Equal(t, want, sw.LocalPeerID())
}
