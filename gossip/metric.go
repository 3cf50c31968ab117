package gossip

import (
	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"
)

func newGossipMetric() *gossipMetric {
	return &gossipMetric{
		msgsSent:     metrics.NewCounter(),
		msgsReceived: metrics.NewCounter(),
		msgsDropped:  metrics.NewCounter(),
		peersSeen:    metrics.NewCounter(),
	}
}

// gossipMetric 网络层的计数器
type gossipMetric struct {
	msgsSent     metrics.Counter // 成功publish的消息数
	msgsReceived metrics.Counter // 从其他peer收到的消息数
	msgsDropped  metrics.Counter // 被限流或者发送失败的消息数
	peersSeen    metrics.Counter // 累计发现过的peer数
}

func (gm *gossipMetric) JSONString() string {
	snapshot := struct {
		MsgsSent     int64 `json:"msgs_sent"`
		MsgsReceived int64 `json:"msgs_received"`
		MsgsDropped  int64 `json:"msgs_dropped"`
		PeersSeen    int64 `json:"peers_seen"`
	}{
		MsgsSent:     gm.msgsSent.Count(),
		MsgsReceived: gm.msgsReceived.Count(),
		MsgsDropped:  gm.msgsDropped.Count(),
		PeersSeen:    gm.peersSeen.Count(),
	}
	s, _ := jsoniter.MarshalToString(snapshot)
	return s
}
