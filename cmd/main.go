package main

import (
	"fmt"
	"os"
	"path/filepath"

	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/cli"

	cmd "educoin_demo/cmd/commands"
	nm "educoin_demo/node"
)

func main() {
	cfg.DefaultTendermintDir = ".educoin"
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	nodeFunc := nm.DefaultNewNode

	rootCmd.AddCommand(
		cmd.GenNodeKeyCmd,
		cmd.GenAccountCmd,
		cmd.ShowNodeIDCmd,
		cmd.NewRunNodeCmd(nodeFunc),
	)

	baseCmd := cli.PrepareBaseCmd(rootCmd, "ED", os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultTendermintDir)))

	if err := baseCmd.Execute(); err != nil {
		fmt.Println("error")
		panic(err)
	}
}
