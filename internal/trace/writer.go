package trace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrArtifactWrite marks a failure to persist a trace artifact. The partial
// output is discarded; a consumer never observes a truncated file.
var ErrArtifactWrite = errors.New("trace: artifact write failed")

const (
	// ArtifactSuffix is appended to a source file's relative path to name its
	// trace artifact.
	ArtifactSuffix = ".trace.json"
	// ViewerSuffix names the optional co-located viewer artifact.
	ViewerSuffix = ".trace.html"
)

// Writer publishes trace artifacts under an output directory, one per source
// file, keyed by the source file's relative path. Writes go to a temp file in
// the destination directory and are renamed into place, so cancellation or a
// crash never leaves a partial artifact visible.
type Writer struct {
	outDir string
}

// NewWriter creates a writer rooted at outDir, creating it if needed.
func NewWriter(outDir string) (*Writer, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create output directory: %v", ErrArtifactWrite, err)
	}
	return &Writer{outDir: outDir}, nil
}

// ArtifactPath returns the artifact path for a source file's relative path.
func (w *Writer) ArtifactPath(relPath string) string {
	return filepath.Join(w.outDir, filepath.FromSlash(relPath)+ArtifactSuffix)
}

// ViewerPath returns the viewer path for a source file's relative path.
func (w *Writer) ViewerPath(relPath string) string {
	return filepath.Join(w.outDir, filepath.FromSlash(relPath)+ViewerSuffix)
}

// Write publishes t's structured artifact and, when withViewer is set, the
// companion viewer. It returns the artifact path.
func (w *Writer) Write(t *Trace, withViewer bool) (string, error) {
	data, err := Encode(t)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	artifactPath := w.ArtifactPath(t.File)
	if err := w.publish(artifactPath, data); err != nil {
		return "", err
	}
	if withViewer {
		viewer, err := RenderViewer(t, data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrArtifactWrite, err)
		}
		if err := w.publish(w.ViewerPath(t.File), viewer); err != nil {
			return "", err
		}
	}
	return artifactPath, nil
}

// WriteViewer publishes only the viewer page for t. artifact must be the
// exact encoded artifact bytes; they are embedded verbatim.
func (w *Writer) WriteViewer(t *Trace, artifact []byte) (string, error) {
	viewer, err := RenderViewer(t, artifact)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	path := w.ViewerPath(t.File)
	if err := w.publish(path, viewer); err != nil {
		return "", err
	}
	return path, nil
}

// publish writes data to path atomically via temp file + rename.
func (w *Writer) publish(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrArtifactWrite, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	return nil
}
