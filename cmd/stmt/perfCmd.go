package stmt

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dGate/cmd/util"
	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/rpc/client"
	"github.com/ValentinKolb/dGate/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dGate servers",
		Long:    util.WrapString("Runs write, query, paging and mixed benchmarks against a dGate server. The benchmarks use their own category and remove their data afterwards."),
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfAgentPrefix = "__perf"
	perfNumThreads  = 10
	perfRows        = 100
	perfBatchSize   = 10
	perfSkip        = make([]string, 0)
)

const (
	perfCategory = "perf-vm-info"
	perfAdd      = "ADD perf-vm-info SET 'agentId' = ?s , 'vmId' = ?s , 'startTime' = ?l"
	perfReplace  = "REPLACE perf-vm-info SET 'agentId' = ?s , 'vmId' = ?s , 'startTime' = ?l WHERE 'agentId' = ?s AND 'vmId' = ?s"
	perfByAgent  = "QUERY perf-vm-info WHERE 'agentId' = ?s SORT 'vmId' ASC"
	perfByVm     = "QUERY perf-vm-info WHERE 'agentId' = ?s AND 'vmId' = ?s LIMIT 1"
	perfRemove   = "REMOVE perf-vm-info WHERE 'agentId' = ?s"
)

var perfSpec = schema.Spec{
	Name:    perfCategory,
	Payload: "PerfVmInfo",
	Keys: []schema.KeySpec{
		{Name: "agentId", Type: schema.KeyTypeString, Indexed: true},
		{Name: "vmId", Type: schema.KeyTypeString, Indexed: true},
		{Name: "startTime", Type: schema.KeyTypeLong},
	},
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. write,query-page)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "rows"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many rows the query benchmarks read"))
	key = "page-size"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Batch size of the paging benchmark"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfRows = viper.GetInt("rows")
	perfBatchSize = viper.GetInt("page-size")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfRows <= 0 || perfBatchSize <= 0 {
		return fmt.Errorf("rows and page-size must be positive")
	}

	return nil
}

// perfStatements are the prepared statements of the benchmarks
type perfStatements struct {
	add, replace, byAgent, byVm, remove *client.Statement
}

func preparePerf() (*perfStatements, error) {
	cat, err := rpcClient.RegisterCategory(perfSpec)
	if err != nil {
		return nil, err
	}

	stmts := &perfStatements{}
	for _, p := range []struct {
		dst  **client.Statement
		text string
	}{
		{&stmts.add, perfAdd},
		{&stmts.replace, perfReplace},
		{&stmts.byAgent, perfByAgent},
		{&stmts.byVm, perfByVm},
		{&stmts.remove, perfRemove},
	} {
		if *p.dst, err = rpcClient.Prepare(cat, p.text); err != nil {
			return nil, fmt.Errorf("failed to prepare %q: %v", p.text, err)
		}
	}
	return stmts, nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for dGate servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	stmts, err := preparePerf()
	if err != nil {
		return err
	}

	fmt.Println("staring tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	writeResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("write") {
			return
		}

		agent := perfAgent("write")
		b.Cleanup(func() { cleanupAgent(stmts, "write", agent) })

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				err := rpcClient.Write(stmts.add, vmParams(agent, counter)...)
				if err != nil {
					log.Printf("(write) - error adding row: %v\n", err)
				}
				counter++
			}
		})
	})

	results["write"] = writeResult
	printResult("write", writeResult)

	replaceResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("replace") {
			return
		}

		agent := perfAgent("replace")
		b.Cleanup(func() { cleanupAgent(stmts, "replace", agent) })

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				vm := vmId(counter % perfRows)
				params := append(vmParams(agent, counter), statement.StringParam(agent), statement.StringParam(vm))
				if err := rpcClient.Write(stmts.replace, params...); err != nil {
					log.Printf("(replace) - error replacing row: %v\n", err)
				}
				counter++
			}
		})
	})

	results["replace"] = replaceResult
	printResult("replace", replaceResult)

	queryOneResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("query-one") {
			return
		}

		agent := perfAgent("query-one")
		seedAgent(stmts, "query-one", agent)
		b.Cleanup(func() { cleanupAgent(stmts, "query-one", agent) })

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				cursor, err := rpcClient.Query(stmts.byVm, 1, statement.StringParam(agent), statement.StringParam(vmId(counter%perfRows)))
				if err == nil {
					_, err = cursor.All()
				}
				if err != nil {
					log.Printf("(query-one) - error querying row: %v\n", err)
				}
				counter++
			}
		})
	})

	results["query-one"] = queryOneResult
	printResult("query-one", queryOneResult)

	queryPageResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("query-page") {
			return
		}

		agent := perfAgent("query-page")
		seedAgent(stmts, "query-page", agent)
		b.Cleanup(func() { cleanupAgent(stmts, "query-page", agent) })

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				cursor, err := rpcClient.Query(stmts.byAgent, perfBatchSize, statement.StringParam(agent))
				if err == nil {
					_, err = cursor.All()
				}
				if err != nil {
					log.Printf("(query-page) - error paging rows: %v\n", err)
				}
			}
		})
	})

	results["query-page"] = queryPageResult
	printResult("query-page", queryPageResult)

	mixedUsageResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("mixed") {
			return
		}

		agent := perfAgent("mixed")
		seedAgent(stmts, "mixed", agent)
		b.Cleanup(func() { cleanupAgent(stmts, "mixed", agent) })

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				var err error
				switch counter % 3 {
				case 0: // write
					err = rpcClient.Write(stmts.add, vmParams(agent, perfRows+counter)...)
				case 1: // point query
					var cursor *client.Cursor
					if cursor, err = rpcClient.Query(stmts.byVm, 1, statement.StringParam(agent), statement.StringParam(vmId(counter%perfRows))); err == nil {
						_, err = cursor.All()
					}
				case 2: // first page
					var cursor *client.Cursor
					if cursor, err = rpcClient.Query(stmts.byAgent, perfBatchSize, statement.StringParam(agent)); err == nil {
						err = cursor.Close()
					}
				}

				if err != nil {
					log.Printf("(mixed) - error performing operation (%d): %v\n", counter%3, err)
				}
				counter++
			}
		})
	})

	results["mixed"] = mixedUsageResult
	printResult("mixed", mixedUsageResult)

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
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
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

func perfAgent(test string) string {
	return fmt.Sprintf("%s-%s-%d", perfAgentPrefix, test, time.Now().UnixNano())
}

func vmId(i int) string {
	return fmt.Sprintf("vm-%06d", i)
}

func vmParams(agent string, i int) []statement.Param {
	return []statement.Param{
		statement.StringParam(agent),
		statement.StringParam(vmId(i)),
		statement.LongParam(time.Now().UnixMilli()),
	}
}

// seedAgent adds perfRows rows for the agent and waits until they are visible
func seedAgent(stmts *perfStatements, test, agent string) {
	for i := 0; i < perfRows; i++ {
		if err := rpcClient.Write(stmts.add, vmParams(agent, i)...); err != nil {
			log.Printf("(%s) - error seeding row: %v\n", test, err)
		}
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		cursor, err := rpcClient.Query(stmts.byAgent, perfRows, statement.StringParam(agent))
		if err != nil {
			log.Printf("(%s) - error checking seeded rows: %v\n", test, err)
			return
		}
		rows, err := cursor.All()
		if err == nil && len(rows) >= perfRows {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	log.Printf("(%s) - seeded rows did not become visible in time\n", test)
}

func cleanupAgent(stmts *perfStatements, test, agent string) {
	if err := rpcClient.Write(stmts.remove, statement.StringParam(agent)); err != nil {
		log.Printf("(%s) - error removing rows: %v\n", test, err)
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount",
		"Serializer", "Transport",
		"Threads", "Rows", "PageSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfRows),
			strconv.Itoa(perfBatchSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
