/*
Package consensus 实现一个教学用的投票流程，不是拜占庭容错协议。

每个节点独立地把交易按到达顺序凑成大小固定的batch，签名全部验证通过后对
当前高度投一票。当自己投过票并且每一个当前已知的peer都投了票，节点落盘
自己本地的batch并进入下一个高度。

两个需要注意的性质：

 1. quorum要求全体已知peer一致，任何一个peer不投票整个网络就停在当前高度；
    peer中途加入或退出会改变quorum的分母。
 2. 区块内容是每个节点本地的mempool顺序，不同节点同一高度落盘的区块可以
    完全不同，这里没有任何一致性保证。
 3. 落盘除了全体已知peer投票之外还要求本节点自己投过票。只收到别人的投票
    时本地batch可能还没凑齐或没验证过，先不落盘，比只数别人的票更严格。
*/
package consensus
