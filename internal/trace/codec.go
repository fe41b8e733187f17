package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Artifact encoding. Output is deterministic: struct marshaling fixes field
// order, segments are sorted by start position, and no map is iterated while
// encoding, so repeated runs over an unchanged file and server version are
// byte-identical.

// Encode serializes t as indented JSON with a trailing newline.
func Encode(t *Trace) ([]byte, error) {
	sort.SliceStable(t.Segments, func(i, j int) bool {
		return t.Segments[i].Start.Before(t.Segments[j].Start)
	})
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trace for %s: %w", t.File, err)
	}
	return append(data, '\n'), nil
}

// Decode parses an artifact produced by Encode and validates its segment
// invariant.
func Decode(data []byte) (*Trace, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var t Trace
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace: %w", err)
	}
	if t.Segments == nil {
		t.Segments = []Segment{}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
