package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"

	"educoin_demo/privval"
)

// GenAccountCmd 生成一把独立的账户key并打印，不写进配置目录
// 方便在一台机器上给多个测试节点准备密钥
var GenAccountCmd = &cobra.Command{
	Use:     "gen-account",
	Aliases: []string{"gen_account"},
	Short:   "Generate a fresh account key and print it as JSON",
	PreRun:  deprecateSnakeCase,
	RunE:    genAccount,
}

func genAccount(cmd *cobra.Command, args []string) error {
	pv := privval.GenFilePV("")

	jsbz, err := tmjson.Marshal(pv.Key)
	if err != nil {
		return fmt.Errorf("account key -> json: %w", err)
	}

	fmt.Printf("%v\n", string(jsbz))
	return nil
}
