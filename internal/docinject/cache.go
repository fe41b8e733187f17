package docinject

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/maypok86/otter"

	"github.com/mvp-joe/leantrace/internal/trace"
)

const cacheCapacity = 512

// traceCache decodes trace artifacts on demand and shares them across page
// workers. Many doc pages map to the same source file, so decoding each
// artifact once matters on large doc trees. Missing artifacts are cached as
// nil so repeated pages for an untraced file stat the disk once.
type traceCache struct {
	traceDir string
	cache    otter.Cache[string, *trace.Trace]
	mu       sync.Mutex
}

func newTraceCache(traceDir string) (*traceCache, error) {
	cache, err := otter.MustBuilder[string, *trace.Trace](cacheCapacity).Build()
	if err != nil {
		return nil, fmt.Errorf("build trace cache: %w", err)
	}
	return &traceCache{traceDir: traceDir, cache: cache}, nil
}

// get returns the decoded trace for a root-relative source path, or nil if
// no artifact exists for it.
func (tc *traceCache) get(relSource string) (*trace.Trace, error) {
	if t, ok := tc.cache.Get(relSource); ok {
		return t, nil
	}

	// Serialize loads; concurrent workers for the same file would otherwise
	// decode the artifact twice.
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if t, ok := tc.cache.Get(relSource); ok {
		return t, nil
	}

	artifact := filepath.Join(tc.traceDir, filepath.FromSlash(relSource)+trace.ArtifactSuffix)
	data, err := os.ReadFile(artifact)
	if os.IsNotExist(err) {
		tc.cache.Set(relSource, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", artifact, err)
	}

	t, err := trace.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", artifact, err)
	}
	tc.cache.Set(relSource, t)
	return t, nil
}
