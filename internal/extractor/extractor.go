// Package extractor orchestrates trace extraction: one goal-query session
// per file, adaptive or exhaustive sampling over token boundaries, and
// atomic artifact publication with optional viewer pages.
package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/mvp-joe/leantrace/internal/trace"
)

// Session is one live goal-query connection for a single file. Implemented
// by lsp.Session; tests substitute fakes.
type Session interface {
	trace.Querier

	// Text returns the document content the session has open.
	Text() string
	// ServerVersion identifies the server for artifact provenance.
	ServerVersion() string

	Close() error
}

// SessionFactory opens a session for one absolute file path. Each worker
// calls it independently; sessions are never shared.
type SessionFactory func(ctx context.Context, absPath string) (Session, error)

// FileResult describes one traced file.
type FileResult struct {
	RelPath  string
	Trace    *trace.Trace
	Queries  int
	Duration time.Duration
}

// ExtractFile runs the full pipeline for one file: boundary enumeration,
// sampling, segment construction. The caller owns artifact writing.
//
// Empty files (and line ranges with no boundaries) produce a valid
// zero-segment trace without any goal queries; the session's text is still
// the source of truth for extent and hashing.
func ExtractFile(ctx context.Context, session Session, relPath, fileHash string, mode trace.Mode, startLine, endLine int) (*FileResult, error) {
	started := time.Now()
	text := session.Text()

	// endLine <= 0 means no restriction.
	end := endLine
	if end <= 0 {
		end = len(trace.Lines(text))
	}
	boundaries := trace.BoundariesRange(text, startLine, end)
	if len(boundaries) == 0 && text != "" {
		return nil, fmt.Errorf("sample %s: line range [%d, %d) selects no lines", relPath, startLine, end)
	}
	sampler := trace.NewSampler(session)
	samples, err := sampler.Run(ctx, boundaries, mode)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", relPath, err)
	}

	t, err := trace.Build(trace.BuildInput{
		File:          relPath,
		Mode:          mode,
		ServerVersion: session.ServerVersion(),
		FileHash:      fileHash,
		Extent:        trace.FileExtent(text),
		StartLine:     startLine,
		EndLine:       endLine,
	}, samples)
	if err != nil {
		return nil, fmt.Errorf("build trace for %s: %w", relPath, err)
	}

	return &FileResult{
		RelPath:  relPath,
		Trace:    t,
		Queries:  sampler.Queries(),
		Duration: time.Since(started),
	}, nil
}
