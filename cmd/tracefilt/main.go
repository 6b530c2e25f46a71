// tracefilt filters the shards of a binary execution trace in parallel,
// removing records selected by the configured filters while keeping the
// trace format's structural metadata intact.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tracefilt/internal/config"
	"tracefilt/internal/runner"
)

var (
	// Global flags
	inputDir      string
	outputDir     string
	configPath    string
	stopTimestamp uint64
	removeTypes   []string
	trimStart     uint64
	trimEnd       uint64
	jobs          int
	verbose       bool

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tracefilt",
	Short: "tracefilt - parallel trace record filter",
	Long: `tracefilt rewrites a directory of per-shard trace streams, dropping the
records the configured filters reject while preserving the invariants
downstream trace tools depend on: encoding records stay paired with their
surviving instructions, chunk ordinals stay sequential, and record-ordinal
markers are patched for removed records.

Each shard is processed by its own worker; output sinks are chosen by the
shard's file suffix (.gz, .zst, .zip archive, or plain binary).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runFilter,
}

func runFilter(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}

	// Flags override file values.
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if cmd.Flags().Changed("stop-timestamp") {
		cfg.StopTimestamp = stopTimestamp
	}
	if cmd.Flags().Changed("jobs") {
		cfg.Jobs = jobs
	}
	if len(removeTypes) > 0 {
		cfg.Filters = append(cfg.Filters, config.FilterSpec{Kind: "remove_types", Types: removeTypes})
	}
	if trimStart != 0 || trimEnd != 0 {
		cfg.Filters = append(cfg.Filters, config.FilterSpec{
			Kind:           "trim",
			StartTimestamp: trimStart,
			EndTimestamp:   trimEnd,
		})
	}

	if inputDir == "" {
		return fmt.Errorf("--input is required")
	}
	if cfg.OutputDir == "" {
		return fmt.Errorf("an output directory is required (--output or config output_dir)")
	}
	filters, err := cfg.BuildFilters()
	if err != nil {
		return err
	}

	return runner.Run(cmd.Context(), runner.Options{
		InputDir:      inputDir,
		OutputDir:     cfg.OutputDir,
		Filters:       filters,
		StopTimestamp: cfg.StopTimestamp,
		Jobs:          cfg.Jobs,
		Log:           logger,
	})
}

func init() {
	rootCmd.Flags().StringVarP(&inputDir, "input", "i", "", "input trace directory")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output trace directory")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML run configuration file")
	rootCmd.Flags().Uint64Var(&stopTimestamp, "stop-timestamp", 0,
		"timestamp after which filtering is disabled per shard (0 = never)")
	rootCmd.Flags().StringSliceVar(&removeTypes, "remove-types", nil,
		"record type names to drop (e.g. memory_read,memory_write)")
	rootCmd.Flags().Uint64Var(&trimStart, "trim-start", 0, "drop records before this timestamp")
	rootCmd.Flags().Uint64Var(&trimEnd, "trim-end", 0, "drop records at or after this timestamp")
	rootCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "max concurrent shards (0 = GOMAXPROCS)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
