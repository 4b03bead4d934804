package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/ripplekit/ripple"
)

const gib = int64(1024 * 1024 * 1024)

type profile struct {
	Name          string
	Writers       int
	Sources       int
	Duration      time.Duration
	BatchSize     int
	MaxProcs      int
	MemLimitBytes int64
}

var profiles = map[string]profile{
	"fast": {
		Name:      "fast",
		Writers:   4,
		Sources:   8,
		Duration:  5 * time.Second,
		BatchSize: 1,
	},
	"standard": {
		Name:      "standard",
		Writers:   8,
		Sources:   32,
		Duration:  15 * time.Second,
		BatchSize: 4,
	},
	"stress": {
		Name:          "stress",
		Writers:       32,
		Sources:       64,
		Duration:      30 * time.Second,
		BatchSize:     16,
		MaxProcs:      4,
		MemLimitBytes: 2 * gib,
	},
}

// counterObserver tallies graph activity with atomic counters for the final
// report.
type counterObserver struct {
	writes     atomic.Uint64
	recomputes atomic.Uint64
	failures   atomic.Uint64
	notifies   atomic.Uint64
	flushes    atomic.Uint64
	flushNanos atomic.Int64
}

func (c *counterObserver) SourceWrite() { c.writes.Add(1) }

func (c *counterObserver) Recompute(err error) {
	c.recomputes.Add(1)
	if err != nil {
		c.failures.Add(1)
	}
}

func (c *counterObserver) Notify(error) { c.notifies.Add(1) }

func (c *counterObserver) Flush(effects int, elapsed time.Duration) {
	c.flushes.Add(1)
	c.flushNanos.Add(int64(elapsed))
}

// diamondGraph is the benchmark workload: every source fans out into a plus
// branch and a minus branch recombined to zero, and all recombinations sum
// into one checksum node. A listener-visible non-zero checksum means a torn
// recombination reached a notification.
type diamondGraph struct {
	sources []*ripple.Signal[int]
	check   ripple.Node[int]
}

func newDiamondGraph(g *ripple.Graph, sources int) *diamondGraph {
	d := &diamondGraph{}
	sums := make([]ripple.Node[int], 0, sources)
	for i := 0; i < sources; i++ {
		s := ripple.NewSignal(g, 0)
		plus := ripple.Map(s, func(n int) (int, error) { return n, nil })
		minus := ripple.Map(s, func(n int) (int, error) { return -n, nil })
		sum := ripple.Combine2(plus, minus, func(a, b int) (int, error) { return a + b, nil })
		d.sources = append(d.sources, s)
		sums = append(sums, sum)
	}
	d.check = ripple.CombineN(sums, func(vs []int) (int, error) {
		total := 0
		for _, v := range vs {
			total += v
		}
		return total, nil
	})
	return d
}

type benchConfig struct {
	profile
	JSONOutput string
	S3Bucket   string
	S3Key      string
	S3Region   string
}

type benchReport struct {
	Profile           string  `json:"profile"`
	Writers           int     `json:"writers"`
	Sources           int     `json:"sources"`
	BatchSize         int     `json:"batch_size"`
	ElapsedSeconds    float64 `json:"elapsed_seconds"`
	Writes            uint64  `json:"writes"`
	WritesPerSecond   float64 `json:"writes_per_second"`
	Notifications     uint64  `json:"notifications"`
	Glitches          uint64  `json:"glitches"`
	Recomputes        uint64  `json:"recomputes"`
	RecomputeFailures uint64  `json:"recompute_failures"`
	Flushes           uint64  `json:"flushes"`
	AvgFlushMicros    float64 `json:"avg_flush_micros"`
	HeapAllocBytes    uint64  `json:"heap_alloc_bytes"`
	TotalAllocBytes   uint64  `json:"total_alloc_bytes"`
	NumGC             uint32  `json:"num_gc"`
}

func runCmd() *cobra.Command {
	var (
		profileName string
		writers     int
		sources     int
		duration    time.Duration
		batchSize   int
		jsonOutput  string
		s3Bucket    string
		s3Key       string
		s3Region    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a writer storm against a diamond graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := profiles[profileName]
			if !ok {
				return fmt.Errorf("unknown profile %q (want fast, standard, or stress)", profileName)
			}
			if writers > 0 {
				p.Writers = writers
			}
			if sources > 0 {
				p.Sources = sources
			}
			if duration > 0 {
				p.Duration = duration
			}
			if batchSize > 0 {
				p.BatchSize = batchSize
			}
			cfg := benchConfig{
				profile:    p,
				JSONOutput: jsonOutput,
				S3Bucket:   s3Bucket,
				S3Key:      s3Key,
				S3Region:   s3Region,
			}
			return runBench(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&profileName, "profile", "standard", "profile: fast|standard|stress")
	cmd.Flags().IntVar(&writers, "writers", 0, "override concurrent writer goroutines")
	cmd.Flags().IntVar(&sources, "sources", 0, "override source signal count")
	cmd.Flags().DurationVar(&duration, "duration", 0, "override storm duration")
	cmd.Flags().IntVar(&batchSize, "batch", 0, "override writes per batch (1 = unbatched)")
	cmd.Flags().StringVar(&jsonOutput, "json", "-", "JSON report path ('-' for stdout)")
	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "upload the JSON report to this S3 bucket")
	cmd.Flags().StringVar(&s3Key, "s3-key", "", "S3 object key (default: ripple-bench/<profile>-<unix>.json)")
	cmd.Flags().StringVar(&s3Region, "s3-region", "us-east-1", "S3 region for report upload")
	return cmd
}

func runBench(ctx context.Context, cfg benchConfig) error {
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}
	if cfg.MemLimitBytes > 0 {
		debug.SetMemoryLimit(cfg.MemLimitBytes)
	}

	obs := &counterObserver{}
	g := ripple.NewGraph(ripple.WithObserver(obs))
	diamond := newDiamondGraph(g, cfg.Sources)

	var notifications, glitches atomic.Uint64
	cancel := diamond.check.Subscribe(func(v int, err error) {
		notifications.Add(1)
		if err == nil && v != 0 {
			glitches.Add(1)
		}
	})
	defer cancel()

	slog.Info("storm starting",
		"profile", cfg.Name,
		"writers", cfg.Writers,
		"sources", cfg.Sources,
		"batch", cfg.BatchSize,
		"duration", cfg.Duration,
	)

	stormCtx, stop := context.WithTimeout(ctx, cfg.Duration)
	defer stop()

	runtime.GC()
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < cfg.Writers; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			i := seed
			for stormCtx.Err() == nil {
				if cfg.BatchSize <= 1 {
					diamond.sources[i%len(diamond.sources)].Update(func(n int) int { return n + 1 })
					i++
					continue
				}
				g.Batch(func() {
					for j := 0; j < cfg.BatchSize; j++ {
						diamond.sources[i%len(diamond.sources)].Update(func(n int) int { return n + 1 })
						i++
					}
				})
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	report := benchReport{
		Profile:           cfg.Name,
		Writers:           cfg.Writers,
		Sources:           cfg.Sources,
		BatchSize:         cfg.BatchSize,
		ElapsedSeconds:    elapsed.Seconds(),
		Writes:            obs.writes.Load(),
		WritesPerSecond:   float64(obs.writes.Load()) / elapsed.Seconds(),
		Notifications:     notifications.Load(),
		Glitches:          glitches.Load(),
		Recomputes:        obs.recomputes.Load(),
		RecomputeFailures: obs.failures.Load(),
		Flushes:           obs.flushes.Load(),
		HeapAllocBytes:    after.HeapAlloc,
		TotalAllocBytes:   after.TotalAlloc - before.TotalAlloc,
		NumGC:             after.NumGC - before.NumGC,
	}
	if flushes := obs.flushes.Load(); flushes > 0 {
		report.AvgFlushMicros = float64(obs.flushNanos.Load()) / float64(flushes) / 1e3
	}

	slog.Info("storm finished",
		"writes", report.Writes,
		"writes_per_sec", fmt.Sprintf("%.0f", report.WritesPerSecond),
		"notifications", report.Notifications,
		"glitches", report.Glitches,
		"avg_flush_us", fmt.Sprintf("%.1f", report.AvgFlushMicros),
	)
	if report.Glitches > 0 {
		slog.Error("glitch freedom violated", "count", report.Glitches)
	}

	if err := writeJSON(cfg.JSONOutput, report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if cfg.S3Bucket != "" {
		key := cfg.S3Key
		if key == "" {
			key = fmt.Sprintf("ripple-bench/%s-%d.json", cfg.Name, time.Now().Unix())
		}
		if err := uploadReport(ctx, cfg.S3Bucket, key, cfg.S3Region, report); err != nil {
			return fmt.Errorf("upload report: %w", err)
		}
		slog.Info("report uploaded", "bucket", cfg.S3Bucket, "key", key)
	}
	return nil
}

func writeJSON(path string, report benchReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
