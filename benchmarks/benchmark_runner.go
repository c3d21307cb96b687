package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

func main() {
	fmt.Println("=== replog benchmark suite ===")
	fmt.Println()

	benchmarks := []struct {
		name        string
		pattern     string
		description string
		benchtime   string
	}{
		{
			name:        "Master log append",
			pattern:     "BenchmarkMasterLogAppend",
			description: "Order assignment under contention",
			benchtime:   "3s",
		},
		{
			name:        "Local log ingest",
			pattern:     "BenchmarkLocalLog",
			description: "Sorted insert and dedup on a secondary",
			benchtime:   "3s",
		},
		{
			name:        "Payload codecs",
			pattern:     "BenchmarkCodec",
			description: "JSON vs CBOR encode/decode of replicated payloads",
			benchtime:   "3s",
		},
		{
			name:        "Write path",
			pattern:     "BenchmarkMasterWrite",
			description: "Write with in-memory secondaries at several write concerns",
			benchtime:   "3s",
		},
	}

	totalStart := time.Now()
	for i, bench := range benchmarks {
		fmt.Printf("[%d/%d] %s\n", i+1, len(benchmarks), bench.name)
		fmt.Printf("Description: %s\n", bench.description)
		fmt.Printf("Running: go test -bench=%s -benchmem -benchtime=%s\n", bench.pattern, bench.benchtime)
		fmt.Println(strings.Repeat("-", 80))

		start := time.Now()
		cmd := exec.Command("go", "test", "-run=^$", "-bench="+bench.pattern, "-benchmem", "-benchtime="+bench.benchtime, ".")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			fmt.Printf(" - Benchmark failed: %v\n", err)
		} else {
			fmt.Printf(" + Benchmark completed in %v\n", time.Since(start))
		}
		fmt.Println()
	}
	fmt.Printf("All benchmarks completed in %v\n", time.Since(totalStart))
}
