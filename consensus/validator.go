package consensus

import "educoin_demo/types"

// BatchSize 凑够多少条交易触发一轮投票，同时也是区块的大小
const BatchSize = 10

// ValidateBatch 逐条验证一批交易的签名，返回合法的条数
// 纯函数，不会动交易本身
func ValidateBatch(txs types.Txs) int {
	valid := 0
	for _, tx := range txs {
		if tx.Verify() {
			valid++
		}
	}
	return valid
}
