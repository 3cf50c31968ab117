package types

import (
	"errors"
	"fmt"

	tmjson "github.com/tendermint/tendermint/libs/json"
)

// Vote - 对当前round的投票，表示该节点验证通过了自己本地的一批交易
// 投票绑定height，收到时height不一致的投票直接丢弃
type Vote struct {
	Height uint32 `json:"height"`
	PeerID string `json:"peer_id"`
}

func NewVote(height uint32, peerID string) *Vote {
	return &Vote{
		Height: height,
		PeerID: peerID,
	}
}

// SignPayload returns the byte payload that gets signed and published on the
// vote topic. Including the peer id keeps payloads unique per node, so the
// gossip layer never dedups two different nodes' votes for the same height.
func (v *Vote) SignPayload() []byte {
	bz, err := tmjson.Marshal(v)
	if err != nil {
		panic(err)
	}
	return bz
}

// VoteFromPayload 从vote topic收到的message body还原投票
func VoteFromPayload(payload []byte) (*Vote, error) {
	vote := &Vote{}
	if err := tmjson.Unmarshal(payload, vote); err != nil {
		return nil, err
	}
	if err := vote.ValidateBasic(); err != nil {
		return nil, err
	}
	return vote, nil
}

func (v *Vote) ValidateBasic() error {
	if v.Height == 0 {
		return errors.New("vote height must be positive")
	}
	if v.PeerID == "" {
		return errors.New("vote carries no peer id")
	}
	return nil
}

func (v *Vote) String() string {
	return fmt.Sprintf("Vote{%d/%s}", v.Height, v.PeerID)
}
