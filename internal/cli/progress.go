package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/leantrace/internal/extractor"
)

// CLIReporter implements extraction progress reporting with a progress bar.
// Callbacks arrive from concurrent file workers, so updates are serialized.
type CLIReporter struct {
	quiet bool

	mu        sync.Mutex
	bar       *progressbar.ProgressBar
	startTime time.Time
}

// NewCLIReporter creates a progress reporter for interactive runs.
func NewCLIReporter(quiet bool) *CLIReporter {
	return &CLIReporter{
		quiet:     quiet,
		startTime: time.Now(),
	}
}

func (c *CLIReporter) OnRunStart(totalFiles int) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Printf("Tracing %d file(s)\n", totalFiles)
	c.bar = progressbar.NewOptions(totalFiles,
		progressbar.OptionSetDescription("Tracing files"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
}

func (c *CLIReporter) OnFileStart(relPath string) {}

func (c *CLIReporter) OnFileDone(relPath string, segments, queries int) {
	c.advance()
}

func (c *CLIReporter) OnFileSkipped(relPath string) {
	c.advance()
}

func (c *CLIReporter) OnFileError(relPath string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Errors print even in quiet mode.
	fmt.Printf("✗ %s: %v\n", relPath, err)
	if c.bar != nil {
		c.bar.Add(1)
	}
}

func (c *CLIReporter) OnRunComplete(summary *extractor.Summary) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		c.bar.Finish()
		c.bar = nil
	}
	fmt.Println()
	fmt.Printf("✓ Trace complete in %.1fs\n", summary.Finished.Sub(summary.Started).Seconds())
	fmt.Printf("  Traced:  %d\n", summary.Traced)
	fmt.Printf("  Skipped: %d\n", summary.Skipped)
	fmt.Printf("  Failed:  %d\n", summary.Failed)
	fmt.Printf("  Queries: %d\n", summary.Queries)
}

func (c *CLIReporter) advance() {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		c.bar.Add(1)
	}
}
