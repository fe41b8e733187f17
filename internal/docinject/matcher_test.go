package docinject

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/leantrace/internal/trace"
)

// twoSegmentTrace builds an artifact for relSource with segments
// [(0,0),(5,0)) and [(5,0),(10,0)).
func twoSegmentTrace(t *testing.T, relSource string) *trace.Trace {
	t.Helper()
	tr, err := trace.Build(trace.BuildInput{
		File:     relSource,
		Mode:     trace.Exhaustive(),
		FileHash: "hash",
		Extent:   trace.Position{Line: 10},
	}, []trace.Sample{
		{Pos: trace.Position{Line: 0}, State: trace.GoalState{Target: "a = a"}},
		{Pos: trace.Position{Line: 5}, State: trace.GoalState{Target: "b = b"}},
	})
	require.NoError(t, err)
	return tr
}

func TestMatchSegment(t *testing.T) {
	t.Parallel()

	tr := twoSegmentTrace(t, "Proofs/Main.lean")

	kind, seg := matchSegment(tr, trace.Position{Line: 2, Column: 3}, 5)
	assert.Equal(t, MatchExact, kind)
	assert.Equal(t, 0, seg)

	kind, seg = matchSegment(tr, trace.Position{Line: 7}, 5)
	assert.Equal(t, MatchExact, kind)
	assert.Equal(t, 1, seg)

	// Past the extent but within the window of the second segment's start.
	kind, seg = matchSegment(tr, trace.Position{Line: 10}, 5)
	assert.Equal(t, MatchNear, kind)
	assert.Equal(t, 1, seg)

	// Far past every segment.
	kind, seg = matchSegment(tr, trace.Position{Line: 59}, 5)
	assert.Equal(t, MatchNone, kind)
	assert.Equal(t, -1, seg)
}

func TestInjectLink_Idempotent(t *testing.T) {
	t.Parallel()

	page := `<html><body><p class="gh_nav_link"><a href="vscode://file//p/A.lean:1:1">source</a></p></body></html>`

	once, changed := injectLink(page, "../t/A.lean.trace.html#seg-0", "trace")
	require.True(t, changed)
	assert.Contains(t, once, `class="leantrace-link"`)

	again, changed := injectLink(once, "../t/A.lean.trace.html#seg-0", "trace")
	assert.False(t, changed)
	assert.Equal(t, once, again)

	// A different target replaces the existing link in place.
	moved, changed := injectLink(once, "../t/A.lean.trace.html#seg-2", "trace")
	assert.True(t, changed)
	assert.Equal(t, 1, strings.Count(moved, `class="leantrace-link"`))
	assert.Contains(t, moved, "#seg-2")
	assert.NotContains(t, moved, "#seg-0")
}

func TestRemoveLink(t *testing.T) {
	t.Parallel()

	page := `<html><body><p class="gh_nav_link"><a href="vscode://file//p/A.lean:1:1">source</a></p></body></html>`

	out, changed := removeLink(page)
	assert.False(t, changed)
	assert.Equal(t, page, out)

	linked, changed := injectLink(page, "t/A.lean.trace.html#seg-0", "trace")
	require.True(t, changed)

	out, changed = removeLink(linked)
	assert.True(t, changed)
	assert.Equal(t, page, out, "removal restores the original page")
}

func TestInjectLink_NoSourceParagraph(t *testing.T) {
	t.Parallel()

	page := `<html><body><p>plain page</p></body></html>`
	out, changed := injectLink(page, "x.html#seg-0", "trace")
	assert.False(t, changed)
	assert.Equal(t, page, out)
}

// TEST PLAN (Inject)
//  1. A declaration inside a segment gets an exact link to its viewer anchor.
//  2. A position a couple of lines off still links, recorded as near.
//  3. A position far outside the window is reported unmatched, page untouched.
//  4. A source without an artifact is reported, not fatal.
//  5. A second run leaves every page byte-identical and updates nothing.
func TestInject(t *testing.T) {
	t.Parallel()

	projectRoot := t.TempDir()
	traceDir := filepath.Join(projectRoot, ".leantrace", "traces")
	docRoot := filepath.Join(projectRoot, "docbuild")
	require.NoError(t, os.MkdirAll(docRoot, 0o755))

	writer, err := trace.NewWriter(traceDir)
	require.NoError(t, err)
	_, err = writer.Write(twoSegmentTrace(t, "Proofs/Main.lean"), true)
	require.NoError(t, err)

	writePage := func(name, title, sourceRel string, line, col int) {
		href := fmt.Sprintf("vscode://file/%s:%d:%d",
			filepath.Join(projectRoot, filepath.FromSlash(sourceRel)), line, col)
		require.NoError(t, os.WriteFile(filepath.Join(docRoot, name), docPage(title, href), 0o644))
	}
	writePage("Nat.one.html", "Nat.one", "Proofs/Main.lean", 2, 1)   // inside segment 0
	writePage("Nat.two.html", "Nat.two", "Proofs/Main.lean", 11, 1)  // 1 line past extent
	writePage("Nat.far.html", "Nat.far", "Proofs/Main.lean", 60, 1)  // far outside the window
	writePage("Nat.none.html", "Nat.none", "Proofs/Other.lean", 1, 1) // no artifact
	require.NoError(t, os.WriteFile(filepath.Join(docRoot, "index.html"),
		[]byte("<html><body>index</body></html>"), 0o644))

	opts := Options{DocRoot: docRoot, ProjectRoot: projectRoot, TraceDir: traceDir}
	report, err := Inject(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Near)
	assert.Equal(t, 2, report.Unmatched)
	assert.Equal(t, 2, report.Updated)
	require.Len(t, report.Records, 4)

	byPage := map[string]InjectionRecord{}
	for _, rec := range report.Records {
		byPage[rec.PagePath] = rec
	}

	exact := byPage["Nat.one.html"]
	assert.Equal(t, MatchExact, exact.Kind)
	assert.Equal(t, 0, exact.Segment)
	assert.True(t, exact.Updated)

	near := byPage["Nat.two.html"]
	assert.Equal(t, MatchNear, near.Kind)
	assert.Equal(t, 1, near.Segment)

	far := byPage["Nat.far.html"]
	assert.Equal(t, MatchNone, far.Kind)
	assert.NotEmpty(t, far.Reason)
	assert.False(t, far.Updated)

	missing := byPage["Nat.none.html"]
	assert.Equal(t, MatchNone, missing.Kind)
	assert.Equal(t, "no trace artifact", missing.Reason)

	content, err := os.ReadFile(filepath.Join(docRoot, "Nat.one.html"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `class="leantrace-link"`)
	assert.Contains(t, string(content), "Proofs/Main.lean.trace.html#seg-0")

	farContent, err := os.ReadFile(filepath.Join(docRoot, "Nat.far.html"))
	require.NoError(t, err)
	assert.NotContains(t, string(farContent), linkClass)

	// Second run: same matches, byte-identical pages, nothing rewritten.
	before := map[string][]byte{}
	for _, name := range []string{"Nat.one.html", "Nat.two.html", "Nat.far.html"} {
		data, err := os.ReadFile(filepath.Join(docRoot, name))
		require.NoError(t, err)
		before[name] = data
	}

	report, err = Inject(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Near)
	assert.Zero(t, report.Updated)

	for name, want := range before {
		got, err := os.ReadFile(filepath.Join(docRoot, name))
		require.NoError(t, err)
		assert.Equal(t, want, got, "%s changed on rerun", name)
	}
}

// A declaration linked by an earlier run loses its link when it stops
// matching: first when its position falls outside a narrowed window, then
// when the artifact itself is gone.
func TestInject_RemovesStaleLinks(t *testing.T) {
	t.Parallel()

	projectRoot := t.TempDir()
	traceDir := filepath.Join(projectRoot, ".leantrace", "traces")
	docRoot := filepath.Join(projectRoot, "docbuild")
	require.NoError(t, os.MkdirAll(docRoot, 0o755))

	writer, err := trace.NewWriter(traceDir)
	require.NoError(t, err)
	_, err = writer.Write(twoSegmentTrace(t, "Proofs/Main.lean"), true)
	require.NoError(t, err)

	pagePath := filepath.Join(docRoot, "Nat.two.html")
	href := fmt.Sprintf("vscode://file/%s:11:1", filepath.Join(projectRoot, "Proofs", "Main.lean"))
	original := docPage("Nat.two", href)
	require.NoError(t, os.WriteFile(pagePath, original, 0o644))

	opts := Options{DocRoot: docRoot, ProjectRoot: projectRoot, TraceDir: traceDir}
	report, err := Inject(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Near)

	linked, err := os.ReadFile(pagePath)
	require.NoError(t, err)
	require.Contains(t, string(linked), linkClass)

	// Narrowed window: position 1 line past the extent no longer matches.
	opts.Window = 1
	report, err = Inject(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unmatched)
	assert.Equal(t, 1, report.Updated)

	content, err := os.ReadFile(pagePath)
	require.NoError(t, err)
	assert.Equal(t, original, content, "stale link removed, page restored")

	// Relink, then drop the artifact; the no-artifact path must also clean up.
	opts.Window = 0
	_, err = Inject(context.Background(), opts)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(traceDir, "Proofs", "Main.lean"+trace.ArtifactSuffix)))

	report, err = Inject(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unmatched)
	assert.Equal(t, 1, report.Updated)

	content, err = os.ReadFile(pagePath)
	require.NoError(t, err)
	assert.Equal(t, original, content)

	// With nothing left to remove, a rerun changes nothing.
	report, err = Inject(context.Background(), opts)
	require.NoError(t, err)
	assert.Zero(t, report.Updated)
}

func TestReport_WriteFile(t *testing.T) {
	t.Parallel()

	r := NewReport("/doc", "/traces")
	r.add(&InjectionRecord{Declaration: "b", PagePath: "b.html", Kind: MatchExact, Segment: 0, Updated: true})
	r.add(&InjectionRecord{Declaration: "a", PagePath: "a.html", Kind: MatchNone, Segment: -1})
	r.add(nil)
	r.finish()

	assert.Equal(t, 1, r.Matched)
	assert.Equal(t, 1, r.Unmatched)
	assert.Equal(t, 1, r.Updated)
	assert.Equal(t, "a.html", r.Records[0].PagePath, "records sorted by page path")

	path := filepath.Join(t.TempDir(), "report", "inject.json")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"runId"`)
	assert.Contains(t, string(data), `"a.html"`)
}
