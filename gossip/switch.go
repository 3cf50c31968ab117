package gossip

import (
	"context"
	"fmt"
	"sync"
	"time"

	golog "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pubsub_pb "github.com/libp2p/go-libp2p-pubsub/pb"
	lp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto/tmhash"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	"golang.org/x/time/rate"

	"educoin_demo/types"
)

const (
	// gossip的两个topic
	TopicTransaction = "transaction"
	TopicVote        = "vote"

	mdnsServiceTag = "educoin-demo"

	connectTimeout  = 10 * time.Second
	connectAttempts = 3

	// publish限流参数
	publishRate  = 100
	publishBurst = 200
)

type Config struct {
	// ListenAddr 形如/ip4/0.0.0.0/tcp/26656的multiaddr
	ListenAddr string

	// BootstrapPeers 启动时主动连接的peer multiaddr列表，可以为空
	BootstrapPeers []string

	// EnableDHT 为true时启动kademlia dht辅助发现
	EnableDHT bool
}

type SwitchOption func(*Switch)

func NewSwitch(config *Config, nodeKey *p2p.NodeKey, options ...SwitchOption) (*Switch, error) {
	priv, err := lp2pcrypto.UnmarshalEd25519PrivateKey(nodeKey.PrivKey.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "node key is not a usable ed25519 key")
	}

	sw := &Switch{
		config:  config,
		privKey: priv,
		topics:  make(map[string]*pubsub.Topic),
		limiter: rate.NewLimiter(rate.Limit(publishRate), publishBurst),
		events:  make(chan Event, 1024),
		metric:  newGossipMetric(),
	}
	sw.BaseService = *service.NewBaseService(nil, "GOSSIP", sw)

	for _, option := range options {
		option(sw)
	}

	return sw, nil
}

// Switch 网络层：libp2p host + gossipsub + 发现
// 不理解消息的语义，只负责送达，解码和验证都在上层
type Switch struct {
	service.BaseService

	config *Config

	privKey lp2pcrypto.PrivKey

	ctx    context.Context
	cancel context.CancelFunc

	host host.Host
	ps   *pubsub.PubSub
	dht  *dht.IpfsDHT
	mdns mdns.Service

	topicsMtx sync.RWMutex
	topics    map[string]*pubsub.Topic

	limiter *rate.Limiter

	events chan Event

	metric *gossipMetric
}

// messageIDFn gossipsub用来去重的消息ID
// 编码规定消息前WireOverhead个字节（公钥+签名）就是它的身份，不够长的消息退化成hash
func messageIDFn(pmsg *pubsub_pb.Message) string {
	data := pmsg.GetData()
	if len(data) >= types.WireOverhead {
		return string(data[:types.WireOverhead])
	}
	return string(tmhash.Sum(data))
}

func (sw *Switch) OnStart() error {
	golog.SetLogLevel("libp2p", "error")

	sw.ctx, sw.cancel = context.WithCancel(context.Background())

	h, err := libp2p.New(
		libp2p.Identity(sw.privKey),
		libp2p.ListenAddrStrings(sw.config.ListenAddr),
	)
	if err != nil {
		sw.cancel()
		return errors.Wrap(err, "failed to create libp2p host")
	}
	sw.host = h

	ps, err := pubsub.NewGossipSub(sw.ctx, h, pubsub.WithMessageIdFn(messageIDFn))
	if err != nil {
		sw.cancel()
		h.Close()
		return errors.Wrap(err, "failed to create gossipsub")
	}
	sw.ps = ps

	// 连接事件直接映射成上层的peer发现/过期事件
	h.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, conn network.Conn) {
			sw.metric.peersSeen.Inc(1)
			sw.emit(PeerDiscoveredEvent{PeerID: conn.RemotePeer().String()})
		},
		DisconnectedF: func(n network.Network, conn network.Conn) {
			// 还有其他连接在的话peer没有消失
			if n.Connectedness(conn.RemotePeer()) == network.Connected {
				return
			}
			sw.emit(PeerExpiredEvent{PeerID: conn.RemotePeer().String()})
		},
	})

	sw.mdns = mdns.NewMdnsService(h, mdnsServiceTag, sw)
	if err := sw.mdns.Start(); err != nil {
		sw.Logger.Error("failed to start mdns discovery", "err", err)
	}

	if sw.config.EnableDHT {
		kadDHT, err := dht.New(sw.ctx, h, dht.Mode(dht.ModeServer))
		if err != nil {
			sw.Logger.Error("failed to create dht", "err", err)
		} else if err := kadDHT.Bootstrap(sw.ctx); err != nil {
			sw.Logger.Error("failed to bootstrap dht", "err", err)
		} else {
			sw.dht = kadDHT
		}
	}

	for _, topicName := range []string{TopicTransaction, TopicVote} {
		topic, err := sw.getOrJoinTopic(topicName)
		if err != nil {
			return err
		}
		sub, err := topic.Subscribe()
		if err != nil {
			return errors.Wrapf(err, "failed to subscribe topic %s", topicName)
		}
		go sw.readRoutine(topicName, sub)
	}

	go sw.connectBootstrapPeers()

	for _, addr := range h.Addrs() {
		sw.emit(ListenAddrEvent{Addr: fmt.Sprintf("%s/p2p/%s", addr, h.ID())})
	}
	sw.Logger.Info("gossip switch started", "peer_id", h.ID().String(), "listen", h.Addrs())

	return nil
}

func (sw *Switch) OnStop() {
	sw.cancel()

	if sw.mdns != nil {
		if err := sw.mdns.Close(); err != nil {
			sw.Logger.Error("error closing mdns", "err", err)
		}
	}

	if sw.dht != nil {
		if err := sw.dht.Close(); err != nil {
			sw.Logger.Error("error closing dht", "err", err)
		}
	}

	sw.topicsMtx.Lock()
	for _, topic := range sw.topics {
		if err := topic.Close(); err != nil {
			sw.Logger.Error("error closing topic", "err", err)
		}
	}
	sw.topicsMtx.Unlock()

	if sw.host != nil {
		if err := sw.host.Close(); err != nil {
			sw.Logger.Error("error closing host", "err", err)
		}
	}
	sw.Logger.Info("gossip switch stopped")
}

// Events 返回事件chan，Switch停止后chan不会关闭，消费方用自己的quit信号退出
func (sw *Switch) Events() <-chan Event {
	return sw.events
}

// LocalPeerID 返回本节点的peer id
// OnStart之前host还不存在，此时返回从私钥推导的id
func (sw *Switch) LocalPeerID() string {
	if sw.host != nil {
		return sw.host.ID().String()
	}
	id, err := peer.IDFromPrivateKey(sw.privKey)
	if err != nil {
		return ""
	}
	return id.String()
}

// Publish 发布一条消息，被限流时返回error并丢弃
func (sw *Switch) Publish(topicName string, data []byte) error {
	if !sw.limiter.Allow() {
		sw.metric.msgsDropped.Inc(1)
		return errors.Errorf("rate limit exceeded for topic %s", topicName)
	}

	topic, err := sw.getOrJoinTopic(topicName)
	if err != nil {
		sw.metric.msgsDropped.Inc(1)
		return err
	}

	if err := topic.Publish(sw.ctx, data); err != nil {
		sw.metric.msgsDropped.Inc(1)
		return errors.Wrapf(err, "failed to publish to topic %s", topicName)
	}

	sw.metric.msgsSent.Inc(1)
	return nil
}

// Metric exposes the gossip metric item for registration in a MetricSet.
func (sw *Switch) Metric() *gossipMetric {
	return sw.metric
}

// HandlePeerFound mdns发现新peer后主动连接
// 连接成功与否都不在这里上报，Connected通知统一负责
func (sw *Switch) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == sw.host.ID() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(sw.ctx, connectTimeout)
		defer cancel()
		if err := sw.host.Connect(ctx, pi); err != nil {
			sw.Logger.Debug("failed to connect to mdns peer", "peer", pi.ID.String(), "err", err)
		}
	}()
}

func (sw *Switch) getOrJoinTopic(topicName string) (*pubsub.Topic, error) {
	sw.topicsMtx.RLock()
	if topic, ok := sw.topics[topicName]; ok {
		sw.topicsMtx.RUnlock()
		return topic, nil
	}
	sw.topicsMtx.RUnlock()

	sw.topicsMtx.Lock()
	defer sw.topicsMtx.Unlock()

	if topic, ok := sw.topics[topicName]; ok {
		return topic, nil
	}

	topic, err := sw.ps.Join(topicName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to join topic %s", topicName)
	}
	sw.topics[topicName] = topic
	return topic, nil
}

// readRoutine 从订阅里读消息并转成MessageEvent，跳过自己发布的
func (sw *Switch) readRoutine(topicName string, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(sw.ctx)
		if err != nil {
			if sw.ctx.Err() == nil {
				sw.Logger.Error("subscription read failed", "topic", topicName, "err", err)
			}
			return
		}

		if msg.ReceivedFrom == sw.host.ID() {
			continue
		}

		data := msg.GetData()
		id := []byte(messageIDFn(msg.Message))
		body := data
		if len(data) >= types.WireOverhead {
			body = data[types.WireOverhead:]
		}

		sw.metric.msgsReceived.Inc(1)
		sw.emit(MessageEvent{
			Source: msg.ReceivedFrom.String(),
			Topic:  topicName,
			ID:     id,
			Body:   body,
		})
	}
}

func (sw *Switch) connectBootstrapPeers() {
	for _, addr := range sw.config.BootstrapPeers {
		maddr, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			sw.Logger.Error("invalid bootstrap peer address", "addr", addr, "err", err)
			continue
		}
		pi, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			sw.Logger.Error("invalid bootstrap peer address", "addr", addr, "err", err)
			continue
		}
		if pi.ID == sw.host.ID() {
			continue
		}
		go sw.connectWithRetry(*pi)
	}
}

func (sw *Switch) connectWithRetry(pi peer.AddrInfo) {
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(sw.ctx, connectTimeout)
		err := sw.host.Connect(ctx, pi)
		cancel()

		if err == nil {
			sw.Logger.Info("connected to bootstrap peer", "peer", pi.ID.String(), "attempt", attempt)
			return
		}
		sw.Logger.Error("failed to connect to bootstrap peer",
			"peer", pi.ID.String(), "attempt", attempt, "err", err)

		if attempt < connectAttempts {
			backoff := time.Duration(attempt*attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-sw.ctx.Done():
				return
			}
		}
	}
}

func (sw *Switch) emit(event Event) {
	select {
	case sw.events <- event:
	case <-sw.ctx.Done():
	}
}

// DerivePeerID 从节点密钥推导libp2p peer id，给show_node_id之类的命令用
func DerivePeerID(nodeKey *p2p.NodeKey) (string, error) {
	priv, err := lp2pcrypto.UnmarshalEd25519PrivateKey(nodeKey.PrivKey.Bytes())
	if err != nil {
		return "", err
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
