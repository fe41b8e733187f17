package docinject

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/leantrace/internal/trace"
)

const (
	// linkClass marks an injected trace link so reruns replace it in place
	// instead of appending a duplicate.
	linkClass = "leantrace-link"

	defaultLabel       = "trace"
	defaultWindow      = 5
	defaultConcurrency = 4
)

// Pages shared across the doc tree rather than tied to one declaration.
var skipPages = map[string]bool{
	"index.html":  true,
	"search.html": true,
	"navbar.html": true,
}

// Options configures one injection run over a doc tree.
type Options struct {
	// DocRoot is the documentation build output tree, rewritten in place.
	DocRoot string
	// ProjectRoot resolves source links to root-relative paths.
	ProjectRoot string
	// TraceDir holds the trace artifacts keyed by source path.
	TraceDir string

	// Window is the line distance allowed for a near match when the
	// documented position falls in no segment.
	Window int
	// Concurrency bounds parallel page workers.
	Concurrency int
	// Label is the injected link text.
	Label string

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = defaultWindow
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.Label == "" {
		o.Label = defaultLabel
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Inject walks the doc tree, matches each declaration page to a trace
// segment, and rewrites pages with trace links. Unmatched declarations are
// reported, never fatal; only I/O and decode failures abort the run.
func Inject(ctx context.Context, opts Options) (*Report, error) {
	opts = opts.withDefaults()

	cache, err := newTraceCache(opts.TraceDir)
	if err != nil {
		return nil, err
	}

	var pages []string
	err = filepath.WalkDir(opts.DocRoot, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != ".html" || skipPages[entry.Name()] {
			return nil
		}
		pages = append(pages, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk doc tree: %w", err)
	}
	sort.Strings(pages)

	report := NewReport(opts.DocRoot, opts.TraceDir)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, page := range pages {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			rec, err := injectPage(opts, cache, page)
			if err != nil {
				return err
			}
			mu.Lock()
			report.add(rec)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.finish()
	opts.Logger.Info("injection complete",
		zap.Int("pages", len(pages)),
		zap.Int("matched", report.Matched),
		zap.Int("near", report.Near),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("updated", report.Updated))
	return report, nil
}

// injectPage processes one doc page and returns its record, or nil for
// pages without a declaration source link.
func injectPage(opts Options, cache *traceCache, pagePath string) (*InjectionRecord, error) {
	content, err := os.ReadFile(pagePath)
	if err != nil {
		return nil, fmt.Errorf("read page %s: %w", pagePath, err)
	}

	loc, err := LocateDeclaration(content)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, nil
	}

	relPage, err := filepath.Rel(opts.DocRoot, pagePath)
	if err != nil {
		return nil, err
	}
	rec := &InjectionRecord{
		Declaration: loc.Name,
		PagePath:    filepath.ToSlash(relPage),
		Kind:        MatchNone,
		Segment:     -1,
	}

	relSource, err := filepath.Rel(opts.ProjectRoot, loc.SourceFile)
	if err != nil || strings.HasPrefix(relSource, "..") {
		// Source outside the project, e.g. a dependency's declaration.
		rec.Reason = "source outside project root"
		return rec, dropStaleLink(pagePath, string(content), rec)
	}
	relSource = filepath.ToSlash(relSource)
	rec.SourceFile = relSource

	t, err := cache.get(relSource)
	if err != nil {
		return nil, err
	}
	if t == nil {
		rec.Reason = "no trace artifact"
		return rec, dropStaleLink(pagePath, string(content), rec)
	}
	rec.ArtifactPath = filepath.ToSlash(filepath.Join(opts.TraceDir, relSource+trace.ArtifactSuffix))

	pos := trace.Position{}
	if loc.Line >= 0 {
		pos = trace.Position{Line: loc.Line, Column: loc.Column}
	}
	kind, segment := matchSegment(t, pos, opts.Window)
	rec.Kind = kind
	rec.Segment = segment
	if kind == MatchNone {
		rec.Reason = fmt.Sprintf("position %s beyond match window", pos)
		return rec, dropStaleLink(pagePath, string(content), rec)
	}

	viewerPath := filepath.Join(opts.TraceDir, filepath.FromSlash(relSource)+trace.ViewerSuffix)
	href, err := filepath.Rel(filepath.Dir(pagePath), viewerPath)
	if err != nil {
		return nil, err
	}
	href = filepath.ToSlash(href) + fmt.Sprintf("#seg-%d", segment)

	updated, changed := injectLink(string(content), href, opts.Label)
	if changed {
		if err := writePage(pagePath, updated); err != nil {
			return nil, err
		}
		rec.Updated = true
	}
	return rec, nil
}

// dropStaleLink removes a link injected by an earlier run from a page whose
// declaration no longer matches; a page carries a link only while its match
// holds.
func dropStaleLink(pagePath, content string, rec *InjectionRecord) error {
	updated, changed := removeLink(content)
	if !changed {
		return nil
	}
	if err := writePage(pagePath, updated); err != nil {
		return err
	}
	rec.Updated = true
	return nil
}

// writePage rewrites a doc page in place, preserving its mode.
func writePage(pagePath, content string) error {
	info, err := os.Stat(pagePath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(pagePath, []byte(content), info.Mode().Perm()); err != nil {
		return fmt.Errorf("rewrite page %s: %w", pagePath, err)
	}
	return nil
}

// matchSegment finds the segment for a declaration position: containment
// first, then the nearest segment start within window lines. Positions can
// drift between the doc generator and the trace when the file changed
// between the two builds.
func matchSegment(t *trace.Trace, pos trace.Position, window int) (MatchKind, int) {
	if idx := t.SegmentAt(pos); idx >= 0 {
		return MatchExact, idx
	}

	best, bestDist := -1, window+1
	for i, seg := range t.Segments {
		dist := seg.Start.Line - pos.Line
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return MatchNone, -1
	}
	return MatchNear, best
}

// injectLink splices the trace link into the page text. An existing marked
// link is replaced in place; otherwise the link paragraph is inserted after
// the source link's paragraph. Returns (content, changed).
func injectLink(content, href, label string) (string, bool) {
	snippet := fmt.Sprintf(`<p class="gh_nav_link"><a class="%s" href="%s">%s</a></p>`,
		linkClass, html.EscapeString(href), html.EscapeString(label))

	if start, end, ok := enclosingParagraph(content, `class="`+linkClass+`"`); ok {
		if content[start:end] == snippet {
			return content, false
		}
		return content[:start] + snippet + content[end:], true
	}

	_, end, ok := enclosingParagraph(content, sourceURLPrefix)
	if !ok {
		return content, false
	}
	return content[:end] + snippet + content[end:], true
}

// removeLink strips a previously injected link paragraph. Returns the page
// and whether anything was removed.
func removeLink(content string) (string, bool) {
	start, end, ok := enclosingParagraph(content, `class="`+linkClass+`"`)
	if !ok {
		return content, false
	}
	return content[:start] + content[end:], true
}

// enclosingParagraph returns the [start, end) bounds of the <p> element
// containing the first occurrence of needle.
func enclosingParagraph(content, needle string) (int, int, bool) {
	i := strings.Index(content, needle)
	if i < 0 {
		return 0, 0, false
	}
	start := strings.LastIndex(content[:i], "<p")
	if start < 0 {
		return 0, 0, false
	}
	end := strings.Index(content[i:], "</p>")
	if end < 0 {
		return 0, 0, false
	}
	end += i + len("</p>")
	return start, end, true
}
