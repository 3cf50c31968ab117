package commands

import (
	"github.com/spf13/cobra"
	cfg "github.com/tendermint/tendermint/config"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/p2p"

	"educoin_demo/gossip"
	"educoin_demo/privval"
)

// InitFilesCmd 生成节点运行需要的两把密钥：gossip身份key和账户key
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the node's key files",
	RunE:  initFiles,
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	// 账户私钥，交易和投票的签名用
	privValKeyFile := config.PrivValidatorKeyFile()
	var pv *privval.FilePV
	if tmos.FileExists(privValKeyFile) {
		pv = privval.LoadFilePV(privValKeyFile)
		logger.Info("Found account key", "keyFile", privValKeyFile)
	} else {
		pv = privval.GenFilePV(privValKeyFile)
		pv.Save()
		logger.Info("Generated account key", "keyFile", privValKeyFile)
	}
	logger.Info("Account address", "address", pv.GetAddress())

	// gossip身份私钥
	nodeKeyFile := config.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("Found node key", "path", nodeKeyFile)
	} else {
		if _, err := p2p.LoadOrGenNodeKey(nodeKeyFile); err != nil {
			return err
		}
		logger.Info("Generated node key", "path", nodeKeyFile)
	}

	nodeKey, err := p2p.LoadNodeKey(nodeKeyFile)
	if err != nil {
		return err
	}
	peerID, err := gossip.DerivePeerID(nodeKey)
	if err != nil {
		return err
	}
	logger.Info("Gossip peer id", "id", peerID)

	return nil
}
