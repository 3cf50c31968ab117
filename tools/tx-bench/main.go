package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tendermint/tendermint/libs/log"

	"educoin_demo/libs/utils"
)

func main() {
	var (
		target      = flag.String("target", "127.0.0.1:26657", "rpc host:port to flood")
		connections = flag.Int("c", 1, "number of websocket connections")
		rate        = flag.Int("r", 20, "txs per second per connection")
		accounts    = flag.Int("a", 10, "number of synthetic accounts in payloads")
		duration    = flag.Int("d", 10, "how long to run, seconds")
		verbose     = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	logger := log.NewNopLogger()
	if *verbose {
		logger = log.NewTMLogger(log.NewSyncWriter(os.Stdout))
	}

	t := newTransacter(*target, *connections, *rate, *accounts)
	t.SetLogger(logger)

	if err := t.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}

	time.Sleep(time.Duration(*duration) * time.Second)
	t.Stop()

	latencies := t.Latencies()
	fmt.Printf("sent %d txs over %d connection(s) in %ds\n", len(latencies), *connections, *duration)
	if len(latencies) > 0 {
		fmt.Printf("send latency (s): min=%.6f max=%.6f mean=%.6f avg=%.6f\n",
			utils.Min(latencies...),
			utils.Max(latencies...),
			utils.Mean(latencies...),
			utils.Avg(latencies...),
		)
	}
}
