// Package runner discovers a trace directory's shard streams and drives the
// filtering core over them, one worker per shard.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tracefilt/internal/core"
	"tracefilt/internal/filter"
	"tracefilt/internal/trace"
	"tracefilt/internal/trace/source"
)

// Options configures one filtering run.
type Options struct {
	InputDir      string
	OutputDir     string
	Filters       []filter.Filter
	StopTimestamp uint64
	Jobs          int       // max concurrent shards; 0 means GOMAXPROCS
	ReportTo      io.Writer // aggregate tally destination; nil means stderr
	Log           *zap.Logger
}

// DiscoverShards lists the shard stream files of a trace directory in a
// stable order, skipping subdirectories and non-trace files.
func DiscoverShards(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("runner: read input dir: %w", err)
	}
	var shards []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.Contains(name, ".trace") {
			continue
		}
		shards = append(shards, filepath.Join(dir, name))
	}
	sort.Strings(shards)
	return shards, nil
}

// Run filters every shard of opts.InputDir into opts.OutputDir. Shards are
// independent: one shard's fatal error stops that shard only, and the run
// fails overall if any shard failed.
func Run(ctx context.Context, opts Options) error {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	report := opts.ReportTo
	if report == nil {
		report = os.Stderr
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	shardPaths, err := DiscoverShards(opts.InputDir)
	if err != nil {
		return err
	}
	if len(shardPaths) == 0 {
		return fmt.Errorf("runner: no shard streams found in %s", opts.InputDir)
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("runner: create output dir: %w", err)
	}

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))
	log.Info("starting filter run",
		zap.Int("shards", len(shardPaths)),
		zap.Int("jobs", jobs),
		zap.Uint64("stop_timestamp", opts.StopTimestamp))

	f := core.New(opts.OutputDir, opts.Filters, opts.StopTimestamp, log)
	defer f.Close()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(jobs)
	for i, path := range shardPaths {
		i, path := i, path
		eg.Go(func() error {
			return runShard(ctx, f, i, path, log)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	f.Report(report)
	if !f.Succeeded() {
		return shardFailures(f, shardPaths)
	}
	return nil
}

// runShard feeds one shard's records through the filterer. A fatal shard
// error is recorded on the shard and does not abort the group; only a
// context cancellation propagates as the worker's error.
func runShard(ctx context.Context, f *core.Filterer, index int, path string, log *zap.Logger) error {
	src, err := source.OpenFile(path)
	if err != nil {
		// Register the failure so the report and success flag stay accurate.
		f.FailShard(index, filepath.Base(path), err)
		log.Error("failed to open shard stream", zap.String("shard", path), zap.Error(err))
		return nil
	}
	defer src.Close()

	sh := f.InitShard(index, src)
	if f.ShardError(sh) == nil {
		var rec trace.Record
		for {
			if err := ctx.Err(); err != nil {
				f.ExitShard(sh)
				return err
			}
			err := src.Next(&rec)
			if err == io.EOF {
				break
			}
			if err != nil {
				// A truncated or corrupt stream fails the shard, not just
				// this worker's loop.
				f.Fail(sh, err)
				log.Error("shard stream read failed", zap.String("shard", src.Name()), zap.Error(err))
				break
			}
			if !f.Process(sh, rec) {
				// Fatal shard error: this shard stops receiving records.
				break
			}
		}
	}
	exitErr := f.ExitShard(sh)
	in, out := sh.Counts()
	if exitErr != nil {
		log.Error("shard failed",
			zap.String("shard", src.Name()),
			zap.Uint64("records_in", in),
			zap.Uint64("records_out", out),
			zap.Error(exitErr))
	} else {
		log.Info("shard done",
			zap.String("shard", src.Name()),
			zap.Uint64("records_in", in),
			zap.Uint64("records_out", out))
	}
	return nil
}

// shardFailures summarizes the failed shards' first errors into one error.
func shardFailures(f *core.Filterer, shardPaths []string) error {
	errs := f.Errors()
	if len(errs) == 0 {
		return fmt.Errorf("runner: run failed")
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return fmt.Errorf("runner: %d of %d shards failed: %s",
		len(errs), len(shardPaths), strings.Join(parts, "; "))
}
