package docinject

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// MatchKind classifies how a declaration was matched to a segment.
type MatchKind string

const (
	// MatchExact means the documented position fell inside a segment.
	MatchExact MatchKind = "exact"
	// MatchNear means the position fell in no segment but a segment start
	// was within the line window.
	MatchNear MatchKind = "near"
	// MatchNone means the declaration was left unlinked.
	MatchNone MatchKind = "unmatched"
)

// InjectionRecord is the result of matching one declaration page.
type InjectionRecord struct {
	Declaration  string    `json:"declaration"`
	PagePath     string    `json:"pagePath"`
	SourceFile   string    `json:"sourceFile,omitempty"`
	ArtifactPath string    `json:"artifactPath,omitempty"`
	Segment      int       `json:"segment"`
	Kind         MatchKind `json:"kind"`
	Reason       string    `json:"reason,omitempty"`
	Updated      bool      `json:"updated"`
}

// Report aggregates one injection run. Records are sorted by page path so
// the serialized report is deterministic.
type Report struct {
	RunID    string `json:"runId"`
	DocRoot  string `json:"docRoot"`
	TraceDir string `json:"traceDir"`

	Matched   int `json:"matched"`
	Near      int `json:"near"`
	Unmatched int `json:"unmatched"`
	Updated   int `json:"updated"`

	Records []InjectionRecord `json:"records"`
}

// NewReport creates an empty report for one run.
func NewReport(docRoot, traceDir string) *Report {
	return &Report{
		RunID:    uuid.New().String(),
		DocRoot:  docRoot,
		TraceDir: traceDir,
		Records:  []InjectionRecord{},
	}
}

func (r *Report) add(rec *InjectionRecord) {
	if rec == nil {
		return
	}
	switch rec.Kind {
	case MatchExact:
		r.Matched++
	case MatchNear:
		r.Near++
	default:
		r.Unmatched++
	}
	if rec.Updated {
		r.Updated++
	}
	r.Records = append(r.Records, *rec)
}

func (r *Report) finish() {
	sort.Slice(r.Records, func(i, j int) bool {
		return r.Records[i].PagePath < r.Records[j].PagePath
	})
}

// WriteFile serializes the report to path atomically.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
