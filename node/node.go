package node

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"

	"educoin_demo/consensus"
	"educoin_demo/gossip"
	"educoin_demo/libs/metric"
	"educoin_demo/mempool"
	"educoin_demo/privval"
	"educoin_demo/rpc"
	"educoin_demo/state"
	"educoin_demo/store"
)

type Provider func(*cfg.Config, log.Logger) (*Node, error)

// Node 把所有模块拼起来的容器
type Node struct {
	service.BaseService

	// config
	config *cfg.Config

	nodeKey *p2p.NodeKey // gossip身份的密钥
	privVal *privval.FilePV

	blockStore *store.BlockStore
	mempool    mempool.Mempool
	blockExec  state.BlockExecutor

	gossipSw  *gossip.Switch
	consensus *consensus.ConsensusState

	metricSet *metric.MetricSet

	rpcListeners []net.Listener
}

type Option func(*Node)

func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load or gen node key %s: %w", config.NodeKeyFile(), err)
	}

	return NewNode(config, nodeKey, logger)
}

func NewNode(config *cfg.Config, nodeKey *p2p.NodeKey, logger log.Logger, options ...Option) (*Node, error) {
	// 账户key和gossip身份key是分开的两个文件
	privVal := privval.LoadOrGenFilePV(config.PrivValidatorKeyFile())

	blockStore, err := store.NewBlockStore("blockstore", config.DBDir(), logger.With("module", "store"))
	if err != nil {
		return nil, err
	}

	mem := mempool.NewListMempool(config.Mempool)
	mem.SetLogger(logger.With("module", "mempool"))

	blockExec := state.NewBlockExec(mem, blockStore)
	blockExec.SetLogger(logger.With("module", "state"))

	gossipSw, err := createGossipSwitch(config, nodeKey, logger)
	if err != nil {
		return nil, err
	}

	localPeerID := gossipSw.LocalPeerID()
	cs := consensus.NewConsensusState(
		mem, blockExec, gossipSw, privVal, localPeerID, gossipSw.Events(),
		consensus.SetInitialHeight(blockStore.Height()+1),
	)
	cs.SetLogger(logger.With("module", "consensus"))

	metricSet := createMetricSet(mem, cs, gossipSw, logger)

	node := &Node{
		config:     config,
		nodeKey:    nodeKey,
		privVal:    privVal,
		blockStore: blockStore,
		mempool:    mem,
		blockExec:  blockExec,
		gossipSw:   gossipSw,
		consensus:  cs,
		metricSet:  metricSet,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)

	for _, option := range options {
		option(node)
	}

	return node, nil
}

func createGossipSwitch(config *cfg.Config, nodeKey *p2p.NodeKey, logger log.Logger) (*gossip.Switch, error) {
	listenAddr, err := tcpToMultiaddr(config.P2P.ListenAddress)
	if err != nil {
		return nil, err
	}

	gossipSw, err := gossip.NewSwitch(&gossip.Config{
		ListenAddr:     listenAddr,
		BootstrapPeers: splitAndTrimEmpty(config.P2P.PersistentPeers, ",", " "),
		EnableDHT:      config.P2P.PexReactor,
	}, nodeKey)
	if err != nil {
		return nil, err
	}
	gossipSw.SetLogger(logger.With("module", "gossip"))
	return gossipSw, nil
}

func createMetricSet(
	mem *mempool.ListMempool,
	cs *consensus.ConsensusState,
	gossipSw *gossip.Switch,
	logger log.Logger,
) *metric.MetricSet {
	metricSet := metric.NewMetricSet()
	for label, item := range map[string]metric.MetricItem{
		"mempool":   mem.Metric(),
		"consensus": cs.Metric(),
		"gossip":    gossipSw.Metric(),
	} {
		if err := metricSet.SetMetrics(label, item); err != nil {
			logger.Error("failed to register metric", "label", label, "err", err)
		}
	}
	return metricSet
}

func (n *Node) OnStart() error {
	if err := n.gossipSw.Start(); err != nil {
		return err
	}

	if err := n.consensus.Start(); err != nil {
		return err
	}

	if n.config.RPC.ListenAddress != "" {
		listeners, err := n.startRPC()
		if err != nil {
			return err
		}
		n.rpcListeners = listeners
	}

	n.Logger.Info("node started",
		"peer_id", n.gossipSw.LocalPeerID(),
		"account", n.privVal.GetAddress(),
		"height", n.consensus.Height())
	return nil
}

func (n *Node) OnStop() {
	for _, l := range n.rpcListeners {
		if err := l.Close(); err != nil {
			n.Logger.Error("error closing rpc listener", "err", err)
		}
	}

	if err := n.consensus.Stop(); err != nil {
		n.Logger.Error("error stopping consensus", "err", err)
	}

	if err := n.gossipSw.Stop(); err != nil {
		n.Logger.Error("error stopping gossip switch", "err", err)
	}

	if err := n.blockStore.GetDB().Close(); err != nil {
		n.Logger.Error("error closing block store", "err", err)
	}

	n.Logger.Info("node stopped")
}

// Consensus 暴露给run_node的stdin交易泵
func (n *Node) Consensus() *consensus.ConsensusState {
	return n.consensus
}

func (n *Node) startRPC() ([]net.Listener, error) {
	rpc.SetEnvironment(&rpc.Environment{
		Mempool:   n.mempool,
		Consensus: n.consensus,
		Store:     n.blockStore,
		MetricSet: n.metricSet,
	})

	rpcLogger := n.Logger.With("module", "rpc-server")
	config := rpcserver.DefaultConfig()

	mux := http.NewServeMux()
	rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)
	wm := rpcserver.NewWebsocketManager(rpc.Routes)
	wm.SetLogger(rpcLogger.With("protocol", "websocket"))
	mux.HandleFunc("/websocket", wm.WebsocketHandler)

	listener, err := rpcserver.Listen(n.config.RPC.ListenAddress, config)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := rpcserver.Serve(listener, mux, rpcLogger, config); err != nil {
			rpcLogger.Error("rpc server stopped", "err", err)
		}
	}()

	return []net.Listener{listener}, nil
}

// tcpToMultiaddr 把tendermint配置里tcp://host:port风格的监听地址翻译成multiaddr
func tcpToMultiaddr(addr string) (string, error) {
	addr = strings.TrimPrefix(addr, "tcp://")
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("unparseable p2p listen address %q: %w", addr, err)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("/ip4/%s/tcp/%s", host, port), nil
}

// splitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. Empty strings are dropped.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
