package extractor

// Reporter provides callbacks for reporting extraction progress.
// Implementations can display progress bars, log messages, or remain silent.
type Reporter interface {
	// OnRunStart is called once after discovery, before any file is traced.
	OnRunStart(totalFiles int)

	// OnFileStart is called when a file's session begins.
	OnFileStart(relPath string)

	// OnFileDone is called after a file's artifact is published.
	OnFileDone(relPath string, segments, queries int)

	// OnFileSkipped is called when the manifest marks a file unchanged.
	OnFileSkipped(relPath string)

	// OnFileError is called when a file fails; the run continues.
	OnFileError(relPath string, err error)

	// OnRunComplete is called once with the final summary.
	OnRunComplete(summary *Summary)
}

// NoOpReporter is a reporter that does nothing. Used when progress output is
// disabled (e.g. --quiet flag).
type NoOpReporter struct{}

func (n *NoOpReporter) OnRunStart(totalFiles int)                        {}
func (n *NoOpReporter) OnFileStart(relPath string)                       {}
func (n *NoOpReporter) OnFileDone(relPath string, segments, queries int) {}
func (n *NoOpReporter) OnFileSkipped(relPath string)                     {}
func (n *NoOpReporter) OnFileError(relPath string, err error)            {}
func (n *NoOpReporter) OnRunComplete(summary *Summary)                   {}
