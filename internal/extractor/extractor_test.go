package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/leantrace/internal/trace"
)

// fakeSession serves scripted goal states over fixed document text.
type fakeSession struct {
	text    string
	stateAt func(pos trace.Position) trace.GoalState
	closed  bool
}

func (s *fakeSession) GoalAt(_ context.Context, pos trace.Position) (trace.GoalState, error) {
	if s.stateAt == nil {
		return trace.GoalState{}, nil
	}
	return s.stateAt(pos), nil
}

func (s *fakeSession) Text() string          { return s.text }
func (s *fakeSession) ServerVersion() string { return "fake server 1.0" }
func (s *fakeSession) Close() error          { s.closed = true; return nil }

func TestExtractFile_SegmentsAndMetadata(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		text: "ab cd\nef\n",
		stateAt: func(pos trace.Position) trace.GoalState {
			if pos.Line == 0 {
				return trace.GoalState{Target: "1 = 1"}
			}
			return trace.GoalState{NoGoals: true}
		},
	}

	result, err := ExtractFile(context.Background(), session, "Basic.lean", "hash1", trace.Exhaustive(), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "Basic.lean", result.RelPath)
	assert.Equal(t, 7, result.Queries, "one query per boundary in exhaustive mode")

	tr := result.Trace
	require.NoError(t, tr.Validate())
	assert.Equal(t, "fake server 1.0", tr.ServerVersion)
	assert.Equal(t, "hash1", tr.FileHash)
	assert.Equal(t, trace.Position{Line: 3}, tr.Extent)

	require.Len(t, tr.Segments, 2)
	assert.Equal(t, trace.Position{Line: 0, Column: 0}, tr.Segments[0].Start)
	assert.Equal(t, trace.Position{Line: 1, Column: 0}, tr.Segments[0].End)
	assert.Equal(t, "1 = 1", tr.Segments[0].State.Target)
	assert.True(t, tr.Segments[1].State.NoGoals)
	assert.Equal(t, tr.Extent, tr.Segments[1].End)
}

func TestExtractFile_EmptyFile(t *testing.T) {
	t.Parallel()

	queries := 0
	session := &fakeSession{
		text: "",
		stateAt: func(trace.Position) trace.GoalState {
			queries++
			return trace.GoalState{}
		},
	}

	result, err := ExtractFile(context.Background(), session, "Empty.lean", "hash0", trace.Exhaustive(), 0, 0)
	require.NoError(t, err)

	assert.Zero(t, result.Queries)
	assert.Zero(t, queries, "empty file issues no goal queries")
	assert.Empty(t, result.Trace.Segments)
	require.NoError(t, result.Trace.Validate())
}

func TestExtractFile_LineRange(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		text: "aa\nbb\ncc\ndd",
		stateAt: func(trace.Position) trace.GoalState {
			return trace.GoalState{Target: "goal"}
		},
	}

	result, err := ExtractFile(context.Background(), session, "Range.lean", "hash2", trace.Exhaustive(), 1, 3)
	require.NoError(t, err)

	tr := result.Trace
	require.Len(t, tr.Segments, 1)
	assert.Equal(t, trace.Position{Line: 1, Column: 0}, tr.Segments[0].Start)
	assert.Equal(t, 1, tr.StartLine)
	assert.Equal(t, 3, tr.EndLine)
}

// A line range that selects nothing must fail up front. Publishing the
// zero-segment trace it would otherwise produce writes an artifact Decode
// rejects, breaking later viewer and inject runs against it.
func TestExtractFile_RangeSelectsNothing(t *testing.T) {
	t.Parallel()

	session := &fakeSession{text: "aa\nbb\ncc\ndd"}

	_, err := ExtractFile(context.Background(), session, "Range.lean", "h", trace.Exhaustive(), 120, 0)
	assert.Error(t, err, "start line past end of file")

	_, err = ExtractFile(context.Background(), session, "Range.lean", "h", trace.Exhaustive(), 2, 2)
	assert.Error(t, err, "empty line range")
}
