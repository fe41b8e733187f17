package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/leantrace/internal/lsp"
	"github.com/mvp-joe/leantrace/internal/store"
	"github.com/mvp-joe/leantrace/internal/trace"
)

// Options configures one extraction run.
type Options struct {
	// RootDir is the project root; file paths are relative to it.
	RootDir string
	// OutDir receives artifacts, mirroring the source tree.
	OutDir string

	Mode trace.Mode
	// Concurrency bounds parallel file workers. Each worker owns its own
	// server session; zero means 1.
	Concurrency int
	// Viewer additionally emits a self-contained HTML page per artifact.
	Viewer bool
	// Force retraces files the manifest would otherwise skip.
	Force bool
	// Prune removes manifest records for files no longer on disk. Set only
	// when the file list came from full discovery.
	Prune bool

	// StartLine and EndLine restrict sampling to [StartLine, EndLine).
	// EndLine <= 0 means end of file.
	StartLine int
	EndLine   int

	// ServerVersion optionally pins the recorded version for skip checks.
	ServerVersion string

	Factory SessionFactory
	// Manifest is optional; without it every file is traced.
	Manifest *store.Manifest

	Reporter Reporter
	Logger   *zap.Logger
}

// FileError pairs a file with the error that stopped its trace.
type FileError struct {
	Path string
	Err  error
}

// Summary is the result of one run. A run with per-file failures still
// completes; Failed counts them and Errors carries the details.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	Traced  int
	Skipped int
	Failed  int
	Queries int

	Errors []FileError
}

// Run traces relPaths under opts. Per-file failures are isolated; the run
// aborts early only for cancellation or a missing server binary, since every
// subsequent file would fail the same way.
func Run(ctx context.Context, opts Options, relPaths []string) (*Summary, error) {
	if opts.Reporter == nil {
		opts.Reporter = &NoOpReporter{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	writer, err := trace.NewWriter(opts.OutDir)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:   uuid.New().String(),
		Started: time.Now(),
	}
	opts.Reporter.OnRunStart(len(relPaths))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, relPath := range relPaths {
		g.Go(func() error {
			err := runFile(gctx, opts, writer, summary, &mu, relPath)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, lsp.ErrBinaryNotFound) || gctx.Err() != nil:
				// No later file can succeed either.
				return err
			default:
				mu.Lock()
				summary.Failed++
				summary.Errors = append(summary.Errors, FileError{Path: relPath, Err: err})
				mu.Unlock()
				opts.Reporter.OnFileError(relPath, err)
				opts.Logger.Warn("file failed", zap.String("file", relPath), zap.Error(err))
				return nil
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if opts.Manifest != nil && opts.Prune {
		if err := pruneDeleted(ctx, opts, relPaths); err != nil {
			opts.Logger.Warn("manifest prune failed", zap.Error(err))
		}
	}

	summary.Finished = time.Now()
	if opts.Manifest != nil {
		err := opts.Manifest.PutRun(ctx, store.RunRecord{
			RunID:      summary.RunID,
			StartedAt:  summary.Started,
			FinishedAt: summary.Finished,
			Traced:     summary.Traced,
			Skipped:    summary.Skipped,
			Failed:     summary.Failed,
		})
		if err != nil {
			opts.Logger.Warn("run record failed", zap.Error(err))
		}
	}
	opts.Reporter.OnRunComplete(summary)
	return summary, nil
}

func runFile(ctx context.Context, opts Options, writer *trace.Writer, summary *Summary, mu *sync.Mutex, relPath string) error {
	absPath := filepath.Join(opts.RootDir, relPath)

	if opts.Manifest != nil && !opts.Force {
		unchanged, _, err := opts.Manifest.Unchanged(ctx, relPath, absPath, opts.Mode.String(), opts.ServerVersion)
		if err != nil {
			return err
		}
		if unchanged {
			mu.Lock()
			summary.Skipped++
			mu.Unlock()
			opts.Reporter.OnFileSkipped(relPath)
			return nil
		}
	}

	fileHash, err := store.HashFile(absPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", relPath, err)
	}

	opts.Reporter.OnFileStart(relPath)
	session, err := opts.Factory(ctx, absPath)
	if err != nil {
		return err
	}
	defer session.Close()

	result, err := ExtractFile(ctx, session, relPath, fileHash, opts.Mode, opts.StartLine, opts.EndLine)
	if err != nil {
		return err
	}

	artifactPath, err := writer.Write(result.Trace, opts.Viewer)
	if err != nil {
		return err
	}

	if opts.Manifest != nil {
		err := opts.Manifest.PutFile(ctx, store.FileRecord{
			Path:          relPath,
			FileHash:      fileHash,
			MtimeUnixNS:   info.ModTime().UnixNano(),
			Mode:          opts.Mode.String(),
			ServerVersion: result.Trace.ServerVersion,
			ArtifactPath:  artifactPath,
			SegmentCount:  len(result.Trace.Segments),
			RunID:         summary.RunID,
			ExtractedAt:   time.Now(),
		})
		if err != nil {
			return err
		}
	}

	mu.Lock()
	summary.Traced++
	summary.Queries += result.Queries
	mu.Unlock()
	opts.Reporter.OnFileDone(relPath, len(result.Trace.Segments), result.Queries)
	opts.Logger.Debug("file traced",
		zap.String("file", relPath),
		zap.Int("segments", len(result.Trace.Segments)),
		zap.Int("queries", result.Queries),
		zap.Duration("elapsed", result.Duration))
	return nil
}

// pruneDeleted drops manifest records for files absent from the discovered
// set.
func pruneDeleted(ctx context.Context, opts Options, relPaths []string) error {
	recorded, err := opts.Manifest.AllFiles(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(relPaths))
	for _, p := range relPaths {
		seen[p] = true
	}
	for _, p := range recorded {
		if !seen[p] {
			if err := opts.Manifest.DeleteFile(ctx, p); err != nil {
				return err
			}
			opts.Logger.Debug("pruned deleted file", zap.String("file", p))
		}
	}
	return nil
}
