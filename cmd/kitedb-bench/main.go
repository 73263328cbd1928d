// kitedb-bench exercises the embedded KiteDB API with parallel workers
// and reports throughput.
//
// Usage:
//
//	kitedb-bench [flags]
//
// Flags:
//
//	--path string       Database directory (default "bench-data")
//	--ops int           Total number of operations (default 100000)
//	--workers int       Number of parallel workers (default 8)
//	--workload string   Workload: set,get,mixed,hset,sadd,lpush,zadd (default "mixed")
//	--value-size int    Value size in bytes (default 64)
package main

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/kitedb/kitedb"
	"github.com/kitedb/kitedb/internal/version"
)

var (
	flagPath      string
	flagOps       int
	flagWorkers   int
	flagWorkload  string
	flagValueSize int
)

var rootCmd = &cobra.Command{
	Use:     "kitedb-bench",
	Short:   "Benchmark the embedded KiteDB engine",
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench()
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagPath, "path", "bench-data", "database directory")
	rootCmd.Flags().IntVar(&flagOps, "ops", 100000, "total number of operations")
	rootCmd.Flags().IntVar(&flagWorkers, "workers", 8, "number of parallel workers")
	rootCmd.Flags().StringVar(&flagWorkload, "workload", "mixed", "workload: set,get,mixed,hset,sadd,lpush,zadd")
	rootCmd.Flags().IntVar(&flagValueSize, "value-size", 64, "value size in bytes")
}

func runBench() error {
	opts := kitedb.DefaultOptions()
	db, err := kitedb.Open(opts, flagPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	fmt.Println("====== KiteDB Benchmark ======")
	fmt.Printf("Path: %s\n", flagPath)
	fmt.Printf("Workers: %d\n", flagWorkers)
	fmt.Printf("Operations: %d\n", flagOps)
	fmt.Printf("Workload: %s\n", flagWorkload)
	fmt.Println()

	value := make([]byte, flagValueSize)
	for i := range value {
		value[i] = byte('a' + i%26)
	}

	var completed, failed int64
	opsPerWorker := flagOps / flagWorkers

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < flagWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("bench:%d:%d", workerID, i)
				var err error
				switch flagWorkload {
				case "set":
					err = db.Set(key, value)
				case "get":
					_, err = db.Get(key)
					if err != nil {
						err = nil // misses are expected
					}
				case "mixed":
					if i%2 == 0 {
						err = db.Set(key, value)
					} else {
						if _, getErr := db.Get(key); getErr != nil {
							err = nil
						}
					}
				case "hset":
					_, err = db.HSet(fmt.Sprintf("bench:hash:%d", workerID), fmt.Sprintf("f%d", i), value)
				case "sadd":
					_, err = db.SAdd(fmt.Sprintf("bench:set:%d", workerID), []string{key})
				case "lpush":
					_, err = db.LPush(fmt.Sprintf("bench:list:%d", workerID), [][]byte{value})
				case "zadd":
					_, err = db.ZAdd(fmt.Sprintf("bench:zset:%d", workerID),
						[]kitedb.ScoreMember{{Score: float64(i), Member: key}})
				default:
					err = fmt.Errorf("unknown workload %q", flagWorkload)
				}
				if err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				atomic.AddInt64(&completed, 1)
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("====== Results ======")
	fmt.Printf("Total time: %v\n", elapsed)
	fmt.Printf("Completed: %d\n", completed)
	fmt.Printf("Failed: %d\n", failed)
	fmt.Printf("Ops/sec: %.2f\n", float64(completed)/elapsed.Seconds())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
