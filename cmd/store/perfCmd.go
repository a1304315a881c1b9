package store

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/raftstore/cmd/util"
	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for raftstore clusters",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. write,read)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the write-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(1, viper.GetInt("keys"))
	perfNumThreads = viper.GetInt("threads")
	perfSkip = util.SplitList(viper.GetString("skip"))

	return nil
}

// benchmark is a single perf test. prepare runs before the timer starts, op is run in parallel.
type benchmark struct {
	name    string
	prepare bool // write all keys before the test
	op      func(key string, counter int) store.Result
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for raftstore clusters")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	for i := range largeValue {
		largeValue[i] = byte('a' + i%26)
	}

	benchmarks := []benchmark{
		{name: "write", op: func(key string, _ int) store.Result {
			return rpcStore.Write(key, []byte("test"))
		}},
		{name: "write-large", op: func(key string, _ int) store.Result {
			return rpcStore.Write(key, largeValue)
		}},
		{name: "read", prepare: true, op: func(key string, _ int) store.Result {
			_, res := rpcStore.Read(key)
			return res
		}},
		{name: "read-missing", op: func(key string, _ int) store.Result {
			// LOOKUP_ERROR expected
			if _, res := rpcStore.Read(key + "-missing"); res.Status != store.StatusLookupError {
				return res
			}
			return store.OK()
		}},
		{name: "remove", prepare: true, op: func(key string, _ int) store.Result {
			return rpcStore.Remove(key)
		}},
		{name: "range", prepare: true, op: func(key string, _ int) store.Result {
			_, res := rpcStore.Range(perfKeyPrefix, "", 10)
			return res
		}},
		{name: "mixed", prepare: true, op: func(key string, counter int) store.Result {
			switch counter % 3 {
			case 0:
				return rpcStore.Write(key, []byte("test"))
			case 1:
				_, res := rpcStore.Read(key)
				if res.Status == store.StatusLookupError {
					return store.OK()
				}
				return res
			default:
				return rpcStore.Remove(key)
			}
		}},
	}

	// Create results map
	results := make(map[string]testing.BenchmarkResult)
	timers := make(map[string]gometrics.Timer)

	for _, bm := range benchmarks {
		if shouldSkip(bm.name) {
			results[bm.name] = testing.BenchmarkResult{}
			printResult(bm.name, results[bm.name], nil)
			continue
		}

		timer := gometrics.NewTimer()
		result := testing.Benchmark(func(b *testing.B) {
			getKey, iter := getKeys(bm.name)

			if bm.prepare {
				iter(func(k string) {
					if res := rpcStore.Write(k, []byte("test")); !res.IsOK() {
						log.Printf("(%s) - error writing key: %s\n", bm.name, res)
					}
				})
			}

			// cleanup
			b.Cleanup(func() {
				iter(func(k string) {
					if res := rpcStore.Remove(k); !res.IsOK() {
						log.Printf("(%s) - error removing key: %s\n", bm.name, res)
					}
				})
			})

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					start := time.Now()
					if res := bm.op(getKey(counter), counter); !res.IsOK() {
						log.Printf("(%s) - error: %s\n", bm.name, res)
					}
					timer.UpdateSince(start)
					counter++
				}
			})
		})

		results[bm.name] = result
		timers[bm.name] = timer
		printResult(bm.name, result, timer)
	}

	// overall call latency as seen by the dispatcher, retries included
	if calls, ok := rpcStore.Metrics().Get("raftstore.client.call").(gometrics.Timer); ok {
		fmt.Println()
		printTimer("all calls", calls)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, timers, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult, timer gometrics.Timer) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
	if timer != nil {
		printTimer("", timer)
	}
}

// printTimer prints the latency percentiles of a timer
func printTimer(name string, timer gometrics.Timer) {
	ps := timer.Percentiles([]float64{0.5, 0.99, 0.999})
	fmt.Printf("%-20sp50=%s p99=%s p99.9=%s (n=%d)\n", name,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]), timer.Count())
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, timers map[string]gometrics.Timer, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P99Ns", "Skipped",
		"Endpoints", "TimeoutSec", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp, opsPerSec, p99 float64
		skipped := "true"

		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}
		if timer, ok := timers[test]; ok {
			p99 = timer.Percentile(0.99)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", p99),
			skipped,
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
