package gossip

import "fmt"

// 网络层和共识层之间的事件模型
// 所有事件都通过Switch.Events()的chan送出，消费方单goroutine串行处理
type Event interface {
	String() string
}

// MessageEvent 收到一条来自其他节点的gossip消息
// ID是发布方自带的消息标识（编码里的公钥+签名前缀），Body是去掉ID后的剩余字节
type MessageEvent struct {
	Source string // 消息propagate过来的peer id
	Topic  string
	ID     []byte
	Body   []byte
}

func (e MessageEvent) String() string {
	return fmt.Sprintf("MessageEvent{topic=%s src=%s len=%d}", e.Topic, e.Source, len(e.Body))
}

// PeerDiscoveredEvent 和一个新peer建立了连接
type PeerDiscoveredEvent struct {
	PeerID string
}

func (e PeerDiscoveredEvent) String() string {
	return fmt.Sprintf("PeerDiscoveredEvent{%s}", e.PeerID)
}

// PeerExpiredEvent 一个peer断开了所有连接
type PeerExpiredEvent struct {
	PeerID string
}

func (e PeerExpiredEvent) String() string {
	return fmt.Sprintf("PeerExpiredEvent{%s}", e.PeerID)
}

// ListenAddrEvent 本机开始监听一个地址
type ListenAddrEvent struct {
	Addr string
}

func (e ListenAddrEvent) String() string {
	return fmt.Sprintf("ListenAddrEvent{%s}", e.Addr)
}
