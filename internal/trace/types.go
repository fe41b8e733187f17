// Package trace implements goal-state trace extraction: sampling goal states
// at source positions, collapsing them into contiguous segments, and
// serializing the result deterministically.
package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Position is a zero-indexed (line, column) location in a source file,
// matching LSP coordinates. Positions order lexicographically by
// (line, column).
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Compare returns -1, 0, or 1 as p orders before, equal to, or after q.
func (p Position) Compare(q Position) int {
	if p.Line != q.Line {
		if p.Line < q.Line {
			return -1
		}
		return 1
	}
	if p.Column != q.Column {
		if p.Column < q.Column {
			return -1
		}
		return 1
	}
	return 0
}

// Before reports whether p orders strictly before q.
func (p Position) Before(q Position) bool {
	return p.Compare(q) < 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Hypothesis is a single named hypothesis in a goal state. Name holds the
// left-hand side as displayed by the server, which may bind several
// identifiers at once (e.g. "h1 h2").
type Hypothesis struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// GoalState is the prover's goal state at one position. It is immutable once
// captured.
//
// The zero value means the position is outside any proof (the server returned
// no goal information). NoGoals is the distinct sentinel for a finished
// proof, where the server reports "no goals".
type GoalState struct {
	NoGoals    bool         `json:"no_goals,omitempty"`
	Hypotheses []Hypothesis `json:"hypotheses,omitempty"`
	Target     string       `json:"target,omitempty"`
	// OtherGoals holds the remaining goals verbatim when the prover reports
	// more than one; they participate in equality so a change in a secondary
	// goal still starts a new segment.
	OtherGoals []string `json:"other_goals,omitempty"`
}

// Absent reports whether the state is the outside-any-proof zero value.
func (g GoalState) Absent() bool {
	return !g.NoGoals && g.Target == "" && len(g.Hypotheses) == 0 && len(g.OtherGoals) == 0
}

// Key returns a short stable content hash of the state, used for equality
// checks in the sampler and as a compact identifier in artifacts.
func (g GoalState) Key() string {
	var b strings.Builder
	if g.NoGoals {
		b.WriteString("no-goals\x00")
	}
	for _, h := range g.Hypotheses {
		b.WriteString(h.Name)
		b.WriteByte('\x00')
		b.WriteString(h.Type)
		b.WriteByte('\x00')
	}
	b.WriteString("\x01")
	b.WriteString(g.Target)
	for _, og := range g.OtherGoals {
		b.WriteByte('\x00')
		b.WriteString(og)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// Equal reports structural equality of two goal states.
func (g GoalState) Equal(o GoalState) bool {
	if g.NoGoals != o.NoGoals || g.Target != o.Target {
		return false
	}
	if len(g.Hypotheses) != len(o.Hypotheses) || len(g.OtherGoals) != len(o.OtherGoals) {
		return false
	}
	for i, h := range g.Hypotheses {
		if h != o.Hypotheses[i] {
			return false
		}
	}
	for i, s := range g.OtherGoals {
		if s != o.OtherGoals[i] {
			return false
		}
	}
	return true
}

// Segment is a half-open position range [Start, End) over which the goal
// state is unchanged. Diff describes the change from the previous segment and
// is nil on the first segment.
type Segment struct {
	Start    Position   `json:"start"`
	End      Position   `json:"end"`
	StateKey string     `json:"state_key"`
	State    GoalState  `json:"state"`
	Diff     *StateDiff `json:"diff,omitempty"`
}

// Trace is the ordered segment sequence for one file plus extraction
// metadata. Artifacts are deterministic: the trace carries the server's
// version tag and the source content hash, never wall-clock time.
type Trace struct {
	File          string    `json:"file"`
	Mode          string    `json:"mode"`
	GridStride    int       `json:"grid_stride,omitempty"`
	ServerVersion string    `json:"server_version,omitempty"`
	FileHash      string    `json:"file_hash"`
	StartLine     int       `json:"start_line,omitempty"`
	EndLine       int       `json:"end_line,omitempty"`
	Extent        Position  `json:"extent"`
	Segments      []Segment `json:"segments"`
}

// Validate checks the segment invariant: segments are ordered by start,
// non-overlapping, contiguous, and cover [start of first segment, Extent)
// exactly. A trace with no segments is valid only when the extent is the zero
// position (an empty file or empty line range).
func (t *Trace) Validate() error {
	if len(t.Segments) == 0 {
		if t.Extent != (Position{}) && t.Extent != (Position{Line: t.StartLine}) {
			return fmt.Errorf("trace %s: no segments but non-empty extent %s", t.File, t.Extent)
		}
		return nil
	}
	for i, seg := range t.Segments {
		if !seg.Start.Before(seg.End) {
			return fmt.Errorf("trace %s: segment %d has empty or inverted range [%s, %s)", t.File, i, seg.Start, seg.End)
		}
		if i > 0 && t.Segments[i-1].End != seg.Start {
			return fmt.Errorf("trace %s: gap or overlap between segment %d (end %s) and %d (start %s)",
				t.File, i-1, t.Segments[i-1].End, i, seg.Start)
		}
	}
	last := t.Segments[len(t.Segments)-1]
	if last.End != t.Extent {
		return fmt.Errorf("trace %s: last segment ends at %s, extent is %s", t.File, last.End, t.Extent)
	}
	return nil
}

// SegmentAt returns the index of the segment containing pos, or -1.
func (t *Trace) SegmentAt(pos Position) int {
	for i, seg := range t.Segments {
		if seg.Start.Compare(pos) <= 0 && pos.Before(seg.End) {
			return i
		}
	}
	return -1
}
