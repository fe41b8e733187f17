package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_PublishesArtifactAndViewer(t *testing.T) {
	t.Parallel()

	outDir := t.TempDir()
	w, err := NewWriter(outDir)
	require.NoError(t, err)

	tr := sampleTrace()
	artifactPath, err := w.Write(tr, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "Arith", "Basic.lean.trace.json"), artifactPath)

	data, err := os.ReadFile(artifactPath)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(tr, decoded))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(artifactPath))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}

	page, err := os.ReadFile(w.ViewerPath(tr.File))
	require.NoError(t, err)
	fromViewer, err := DecodeViewer(page)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(tr, fromViewer))
}

func TestWriter_NoViewerByDefault(t *testing.T) {
	t.Parallel()

	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	tr := sampleTrace()
	_, err = w.Write(tr, false)
	require.NoError(t, err)

	_, err = os.Stat(w.ViewerPath(tr.File))
	assert.True(t, os.IsNotExist(err))
}

func TestWriter_WriteViewerFromArtifact(t *testing.T) {
	t.Parallel()

	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	tr := sampleTrace()
	artifactPath, err := w.Write(tr, false)
	require.NoError(t, err)
	data, err := os.ReadFile(artifactPath)
	require.NoError(t, err)

	viewerPath, err := w.WriteViewer(tr, data)
	require.NoError(t, err)

	page, err := os.ReadFile(viewerPath)
	require.NoError(t, err)
	fromViewer, err := DecodeViewer(page)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(tr, fromViewer))
}

func TestViewer_EmbedsArtifactVerbatim(t *testing.T) {
	t.Parallel()

	// A target containing "</script>" must not break the page: Encode
	// escapes '<' inside JSON strings.
	tr := sampleTrace()
	tr.Segments[0].State.Target = "</script><b>x</b>"

	data, err := Encode(tr)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "</script>")

	page, err := RenderViewer(tr, data)
	require.NoError(t, err)
	fromViewer, err := DecodeViewer(page)
	require.NoError(t, err)
	assert.Equal(t, "</script><b>x</b>", fromViewer.Segments[0].State.Target)
}
