package consensus

import (
	"fmt"
	"sort"
	"sync"

	"educoin_demo/types"
)

func NewVoterSet() *VoterSet {
	return &VoterSet{
		voters: make(map[string]struct{}),
	}
}

// VoterSet 当前高度已经投过票的peer集合
// 重复的投票是幂等的，换高度时整个清空
type VoterSet struct {
	mtx    sync.Mutex
	voters map[string]struct{}
}

// RecordVote 先验证再登记：编码签名合法、载荷可解析、高度和本地一致、
// eligible认可投票人才算数。voters不放进没资格的peer，集合永远不会大于已知peer
// 返回投票人的peer id和是否真的登记成功
func (vs *VoterSet) RecordVote(envelope *types.SignedTx, curHeight uint32, eligible func(peerID string) bool) (string, bool, error) {
	if !envelope.Verify() {
		return "", false, fmt.Errorf("vote envelope carries invalid signature")
	}

	vote, err := types.VoteFromPayload(envelope.Payload)
	if err != nil {
		return "", false, err
	}

	if vote.Height != curHeight {
		return vote.PeerID, false, fmt.Errorf("vote for height %d, current height %d", vote.Height, curHeight)
	}

	if !eligible(vote.PeerID) {
		return vote.PeerID, false, fmt.Errorf("vote from unknown peer %s", vote.PeerID)
	}

	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	if _, ok := vs.voters[vote.PeerID]; ok {
		return vote.PeerID, false, nil
	}
	vs.voters[vote.PeerID] = struct{}{}
	return vote.PeerID, true, nil
}

func (vs *VoterSet) Has(peerID string) bool {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	_, ok := vs.voters[peerID]
	return ok
}

func (vs *VoterSet) Size() int {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	return len(vs.voters)
}

// Remove 把一个peer的投票作废，peer过期后voters不能大于已知peer集合
func (vs *VoterSet) Remove(peerID string) {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	delete(vs.voters, peerID)
}

func (vs *VoterSet) Clear() {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	vs.voters = make(map[string]struct{})
}

func (vs *VoterSet) List() []string {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	list := make([]string, 0, len(vs.voters))
	for peerID := range vs.voters {
		list = append(list, peerID)
	}
	sort.Strings(list)
	return list
}
