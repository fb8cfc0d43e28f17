// Command triekv-bench drives a synthetic workload against one Engine
// instance rooted in a scratch data directory, adapted from the storage
// engines' own benchmark harness but scoped to the single trie-of-pages
// engine (no cross-engine comparison mode: there is only one engine now).
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/intellect4all/triekv/common/benchmark"
	"github.com/intellect4all/triekv/engine"
)

func main() {
	workload := flag.String("workload", "all", "workload to run (all, write-heavy, read-heavy, balanced, write-only, read-only)")
	duration := flag.Duration("duration", 30*time.Second, "duration for each workload")
	concurrency := flag.Int("concurrency", 8, "number of concurrent workers")
	cacheMiB := flag.Int64("cache-size", 128, "cache budget, MiB")
	fsync := flag.String("fsync", "default", "default|strict")
	flag.Parse()

	fmt.Println("triekv benchmark suite")
	fmt.Println(strings.Repeat("=", 40))
	fmt.Printf("Duration: %v, Concurrency: %d\n\n", *duration, *concurrency)

	dataDir, err := os.MkdirTemp("", "triekv-bench-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create scratch dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dataDir)

	durability := engine.FsyncDefault
	if *fsync == string(engine.FsyncStrict) {
		durability = engine.FsyncStrict
	}

	eng, err := engine.New(engine.Config{
		DataDir:        dataDir,
		CacheSizeBytes: *cacheMiB * 1024 * 1024,
		Durability:     durability,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	configs := standardWorkloads(*duration, *concurrency)
	if *workload != "all" {
		configs = filterByName(configs, *workload)
		if len(configs) == 0 {
			fmt.Fprintf(os.Stderr, "unknown workload: %s\n", *workload)
			os.Exit(1)
		}
	}

	var results []*benchmark.Result
	for _, cfg := range configs {
		fmt.Printf("\n=== %s ===\n", cfg.Name)
		bench := benchmark.NewBenchmark(eng, cfg)
		result, err := bench.Run()
		if err != nil {
			fmt.Printf("benchmark failed: %v\n", err)
			continue
		}
		results = append(results, result)
		printResult(result)
	}

	printSummary(results)
}

func standardWorkloads(duration time.Duration, concurrency int) []benchmark.Config {
	base := benchmark.Config{
		NumKeys:     100_000,
		KeySize:     24,
		ValueSize:   100,
		Duration:    duration,
		Concurrency: concurrency,
		PreloadKeys: 10_000,
		Seed:        42,
		Dist:        benchmark.DistZipfian,
	}

	writeHeavy, readHeavy, balanced, writeOnly, readOnly := base, base, base, base, base
	writeHeavy.Name, writeHeavy.Workload = "write-heavy", benchmark.WorkloadWriteHeavy
	readHeavy.Name, readHeavy.Workload = "read-heavy", benchmark.WorkloadReadHeavy
	balanced.Name, balanced.Workload = "balanced", benchmark.WorkloadBalanced
	writeOnly.Name, writeOnly.Workload = "write-only", benchmark.WorkloadWriteOnly
	readOnly.Name, readOnly.Workload = "read-only", benchmark.WorkloadReadOnly

	return []benchmark.Config{writeHeavy, readHeavy, balanced, writeOnly, readOnly}
}

func filterByName(configs []benchmark.Config, name string) []benchmark.Config {
	out := make([]benchmark.Config, 0, 1)
	for _, c := range configs {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func printResult(r *benchmark.Result) {
	fmt.Printf("Throughput: %.0f ops/sec (writes: %d, reads: %d, errors: %d)\n",
		r.OpsPerSec, r.WriteOps, r.ReadOps, r.ErrorOps)
	if r.WriteOps > 0 {
		fmt.Printf("  write p50=%s p95=%s p99=%s\n", r.WriteLatency.P50, r.WriteLatency.P95, r.WriteLatency.P99)
	}
	if r.ReadOps > 0 {
		fmt.Printf("  read  p50=%s p95=%s p99=%s\n", r.ReadLatency.P50, r.ReadLatency.P95, r.ReadLatency.P99)
	}
	fmt.Printf("  resident_pages=%d split_count=%d poisoned_pages=%d log_bytes=%s\n",
		r.EngineStats.ResidentPages, r.EngineStats.SplitCount, r.EngineStats.PoisonedPages,
		humanize.IBytes(uint64(r.EngineStats.TotalLogBytes)))
}

func printSummary(results []*benchmark.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Println("\n" + strings.Repeat("=", 40))
	fmt.Println("SUMMARY")
	fmt.Printf("%-14s %12s %12s\n", "workload", "ops/sec", "write p99")
	for _, r := range results {
		writeP99 := "n/a"
		if r.WriteOps > 0 {
			writeP99 = r.WriteLatency.P99.String()
		}
		fmt.Printf("%-14s %10.0f/s %12s\n", r.Config.Name, r.OpsPerSec, writeP99)
	}
}
