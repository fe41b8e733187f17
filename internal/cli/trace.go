package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/leantrace/internal/config"
	"github.com/mvp-joe/leantrace/internal/extractor"
	"github.com/mvp-joe/leantrace/internal/files"
	"github.com/mvp-joe/leantrace/internal/lsp"
	"github.com/mvp-joe/leantrace/internal/store"
)

const serverBinaryName = "lake"

var (
	quietFlag       bool
	watchFlag       bool
	forceFlag       bool
	modeFlag        string
	strideFlag      int
	outFlag         string
	viewerFlag      bool
	concurrencyFlag int
	startLineFlag   int
	endLineFlag     int
)

// traceCmd represents the trace command
var traceCmd = &cobra.Command{
	Use:   "trace [files...]",
	Short: "Extract goal-state traces from Lean source files",
	Long: `Trace spawns one language-server session per source file, samples the
prover's goal state at token boundaries, and writes one deterministic trace
artifact per file under the output directory, mirroring the source tree.

Without file arguments the whole project is discovered and traced; files
unchanged since the last run (same content, mode, and server) are skipped
via the manifest.

Examples:
  # Trace the whole project
  leantrace trace

  # Trace one file exhaustively
  leantrace trace --mode exhaustive Basic.lean

  # Restrict sampling to a line range
  leantrace trace --start-line 120 --end-line 180 Basic.lean

  # Keep retracing as files change
  leantrace trace --watch
`,
	RunE: runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Disable progress bars and non-error output")
	traceCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch for file changes and retrace incrementally")
	traceCmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Retrace files the manifest would skip")
	traceCmd.Flags().StringVar(&modeFlag, "mode", "", `Sampling mode: "adaptive" or "exhaustive"`)
	traceCmd.Flags().IntVar(&strideFlag, "stride", 0, "Adaptive grid stride in token boundaries")
	traceCmd.Flags().StringVar(&outFlag, "out", "", "Artifact output directory")
	traceCmd.Flags().BoolVar(&viewerFlag, "viewer", true, "Also emit a self-contained HTML viewer per file")
	traceCmd.Flags().IntVar(&concurrencyFlag, "concurrency", 0, "Parallel file sessions")
	traceCmd.Flags().IntVar(&startLineFlag, "start-line", 0, "First line to sample (zero-based, inclusive)")
	traceCmd.Flags().IntVar(&endLineFlag, "end-line", 0, "Line to stop sampling at (exclusive; 0 = end of file)")
}

func runTrace(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted! Cancelling trace...")
		cancel()
	}()

	if startLineFlag < 0 {
		return fmt.Errorf("--start-line must be >= 0, got %d", startLineFlag)
	}
	if endLineFlag > 0 && startLineFlag >= endLineFlag {
		return fmt.Errorf("--end-line (%d) must be greater than --start-line (%d)", endLineFlag, startLineFlag)
	}

	rootDir, err := resolveRoot()
	if err != nil {
		return err
	}
	cfg, err := config.NewLoader(rootDir).Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyTraceFlags(cmd, cfg)

	mode, err := cfg.TraceMode()
	if err != nil {
		return err
	}

	// A missing server binary fails every file; resolve before any work.
	binary, err := lsp.ResolveServer(cfg.Server.Path, serverBinaryName)
	if err != nil {
		return err
	}

	discovery, err := files.NewDiscovery(rootDir, cfg.Paths.Source, cfg.Paths.Ignore)
	if err != nil {
		return fmt.Errorf("invalid path patterns: %w", err)
	}
	relPaths, err := resolveTargets(rootDir, discovery, args)
	if err != nil {
		return err
	}

	var manifest *store.Manifest
	if cfg.Trace.Manifest != "" {
		path := filepath.Join(rootDir, cfg.Trace.Manifest)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create manifest directory: %w", err)
		}
		manifest, err = store.Open(path)
		if err != nil {
			return err
		}
		defer manifest.Close()
	}

	lspCfg := lsp.Config{
		Binary:         binary,
		Args:           cfg.Server.Args,
		RootDir:        rootDir,
		GoalMethod:     cfg.Server.GoalMethod,
		WaitMethod:     cfg.Server.WaitMethod,
		StartupTimeout: time.Duration(cfg.Server.StartupTimeoutSec) * time.Second,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
		ReadyRetries:   cfg.Server.ReadyRetries,
		ReadyBackoff:   time.Duration(cfg.Server.ReadyBackoffMS) * time.Millisecond,
		Logger:         logger,
	}

	var reporter extractor.Reporter = NewCLIReporter(quietFlag)
	opts := extractor.Options{
		RootDir:     rootDir,
		OutDir:      filepath.Join(rootDir, cfg.Trace.OutDir),
		Mode:        mode,
		Concurrency: cfg.Trace.Concurrency,
		Viewer:      cfg.Trace.Viewer,
		Force:       forceFlag,
		Prune:       len(args) == 0,
		StartLine:   startLineFlag,
		EndLine:     endLineFlag,
		Factory: func(ctx context.Context, absPath string) (extractor.Session, error) {
			return lsp.Open(ctx, lspCfg, absPath)
		},
		Manifest: manifest,
		Reporter: reporter,
		Logger:   logger,
	}

	summary, err := extractor.Run(ctx, opts, relPaths)
	if err != nil {
		return err
	}

	if watchFlag {
		watcher, err := extractor.NewWatcher(opts, discovery)
		if err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		watcher.Start(ctx)
		defer watcher.Stop()
		if !quietFlag {
			fmt.Println("Watching for changes. Press Ctrl+C to stop.")
		}
		<-ctx.Done()
		return nil
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d file(s) failed", summary.Failed)
	}
	return nil
}

// applyTraceFlags lets explicit flags override the loaded configuration.
func applyTraceFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("mode") {
		cfg.Trace.Mode = modeFlag
	}
	if cmd.Flags().Changed("stride") {
		cfg.Trace.GridStride = strideFlag
	}
	if cmd.Flags().Changed("out") {
		cfg.Trace.OutDir = outFlag
	}
	if cmd.Flags().Changed("viewer") {
		cfg.Trace.Viewer = viewerFlag
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Trace.Concurrency = concurrencyFlag
	}
}

// resolveTargets turns file arguments into root-relative paths, or discovers
// the whole project when none are given.
func resolveTargets(rootDir string, discovery *files.Discovery, args []string) ([]string, error) {
	if len(args) == 0 {
		relPaths, err := discovery.Discover()
		if err != nil {
			return nil, fmt.Errorf("file discovery failed: %w", err)
		}
		return relPaths, nil
	}

	relPaths := make([]string, 0, len(args))
	for _, arg := range args {
		abs := arg
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(rootDir, arg)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("cannot trace %s: %w", arg, err)
		}
		rel, err := filepath.Rel(rootDir, abs)
		if err != nil {
			return nil, err
		}
		relPaths = append(relPaths, filepath.ToSlash(rel))
	}
	return relPaths, nil
}
