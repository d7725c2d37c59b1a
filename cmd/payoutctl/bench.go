package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type benchOptions struct {
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	users       int
	currency    string
	outFile     string
}

type benchCounters struct {
	total   atomic.Uint64
	created atomic.Uint64 // 201
	replay  atomic.Uint64 // 200
	invalid atomic.Uint64 // 4xx
	failed  atomic.Uint64
}

func benchCmd() *cobra.Command {
	opts := &benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load test payout creation on the receiver",
		Long: `Drive POST /api/v1/payouts from concurrent workers.

Workloads:
  uniform  every request carries a fresh idempotency key
  replay   90% of requests reuse one of a handful of keys, exercising idempotent replays`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.workload != "uniform" && opts.workload != "replay" {
				return fmt.Errorf("unknown workload %q (uniform | replay)", opts.workload)
			}
			return runBench(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.targetURL, "url", "http://localhost:8080", "Receiver base URL")
	cmd.Flags().IntVar(&opts.concurrency, "workers", 10, "Number of concurrent workers")
	cmd.Flags().DurationVar(&opts.duration, "duration", 30*time.Second, "Test duration")
	cmd.Flags().StringVar(&opts.workload, "workload", "uniform", "Workload type: uniform | replay")
	cmd.Flags().IntVar(&opts.users, "users", 100, "Spread requests across user ids 1..users")
	cmd.Flags().StringVar(&opts.currency, "currency", "USD", "Payout currency")
	cmd.Flags().StringVar(&opts.outFile, "out", "", "Also write results to this file")
	return cmd
}

func runBench(cmd *cobra.Command, opts *benchOptions) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Starting Benchmark: %s | Workers: %d | Duration: %s\n", opts.workload, opts.concurrency, opts.duration)

	hotKeys := make([]string, 8)
	for i := range hotKeys {
		hotKeys[i] = "bench-hot-" + uuid.NewString()
	}

	var counters benchCounters
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < opts.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			benchWorker(cmd, opts, hotKeys, start, &counters)
		}()
	}
	wg.Wait()

	return printBenchResults(cmd, opts, time.Since(start), &counters)
}

func benchWorker(cmd *cobra.Command, opts *benchOptions, hotKeys []string, start time.Time, c *benchCounters) {
	client := &http.Client{Timeout: 5 * time.Second}
	ctx := cmd.Context()

	for time.Since(start) < opts.duration && ctx.Err() == nil {
		key := "bench-" + uuid.NewString()
		userID := rand.IntN(opts.users) + 1
		if opts.workload == "replay" && rand.Float32() < 0.90 {
			idx := rand.IntN(len(hotKeys))
			key = hotKeys[idx]
			// A replayed key must carry the same owner as its first use.
			userID = idx%opts.users + 1
		}

		body, _ := json.Marshal(map[string]any{
			"user_id":         userID,
			"amount":          "100.00",
			"currency":        opts.currency,
			"idempotency_key": key,
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.targetURL+"/api/v1/payouts", bytes.NewReader(body))
		if err != nil {
			c.failed.Add(1)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			c.failed.Add(1)
			continue
		}
		resp.Body.Close()

		c.total.Add(1)
		switch {
		case resp.StatusCode == http.StatusCreated:
			c.created.Add(1)
		case resp.StatusCode == http.StatusOK:
			c.replay.Add(1)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			c.invalid.Add(1)
		default:
			c.failed.Add(1)
		}
	}
}

func printBenchResults(cmd *cobra.Command, opts *benchOptions, d time.Duration, c *benchCounters) error {
	total := c.total.Load()
	results := map[string]any{
		"workload":        opts.workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  float64(total) / d.Seconds(),
		"success_created": c.created.Load(),
		"success_replay":  c.replay.Load(),
		"client_errors":   c.invalid.Load(),
		"errors":          c.failed.Load(),
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	if opts.outFile == "" {
		return nil
	}
	file, err := os.Create(opts.outFile)
	if err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	defer file.Close()
	return json.NewEncoder(file).Encode(results)
}
