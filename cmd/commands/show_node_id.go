package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/p2p"

	"educoin_demo/gossip"
)

// ShowNodeIDCmd 打印本节点的gossip peer id
var ShowNodeIDCmd = &cobra.Command{
	Use:     "show-node-id",
	Aliases: []string{"show_node_id"},
	Short:   "Show this node's gossip peer id",
	PreRun:  deprecateSnakeCase,
	RunE:    showNodeID,
}

func showNodeID(cmd *cobra.Command, args []string) error {
	nodeKey, err := p2p.LoadNodeKey(config.NodeKeyFile())
	if err != nil {
		return err
	}

	peerID, err := gossip.DerivePeerID(nodeKey)
	if err != nil {
		return err
	}

	fmt.Println(peerID)
	return nil
}
