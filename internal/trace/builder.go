package trace

import "fmt"

// BuildInput carries everything the model builder needs beyond the samples
// themselves.
type BuildInput struct {
	File          string   // slash-separated path relative to the project root
	Mode          Mode     // sampling mode used
	ServerVersion string   // server version tag, recorded as metadata
	FileHash      string   // sha256 of the source content
	Extent        Position // exclusive upper bound of the sampled range
	StartLine     int      // first sampled line, non-zero only for restricted ranges
	EndLine       int      // recorded when a line range was restricted, else 0
}

// Build collapses position-ordered samples into a trace whose segments are
// non-overlapping, start-ordered, and cover [first sample, Extent) with no
// gaps, regardless of sampling mode. Consecutive samples with structurally
// equal states merge into one segment; each later segment carries the diff
// from its predecessor. No samples yield a trace with no segments.
func Build(in BuildInput, samples []Sample) (*Trace, error) {
	t := &Trace{
		File:          in.File,
		Mode:          in.Mode.String(),
		ServerVersion: in.ServerVersion,
		FileHash:      in.FileHash,
		StartLine:     in.StartLine,
		EndLine:       in.EndLine,
		Extent:        in.Extent,
		Segments:      []Segment{},
	}
	if in.Mode.Kind == ModeAdaptive {
		t.GridStride = in.Mode.GridStride
	}
	if len(samples) == 0 {
		// The zero-segment rule holds on the write path too; anything Decode
		// would reject must never be built.
		if err := t.Validate(); err != nil {
			return nil, err
		}
		return t, nil
	}

	for i, sm := range samples {
		if i > 0 && !samples[i-1].Pos.Before(sm.Pos) {
			return nil, fmt.Errorf("samples out of order at %s", sm.Pos)
		}
		if i > 0 && sm.State.Equal(samples[i-1].State) {
			continue
		}
		if n := len(t.Segments); n > 0 {
			t.Segments[n-1].End = sm.Pos
		}
		seg := Segment{Start: sm.Pos, State: sm.State, StateKey: sm.State.Key()}
		if n := len(t.Segments); n > 0 {
			seg.Diff = DiffStates(t.Segments[n-1].State, sm.State)
		}
		t.Segments = append(t.Segments, seg)
	}
	t.Segments[len(t.Segments)-1].End = in.Extent

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
