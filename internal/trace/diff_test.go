package trace

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestDiffStates(t *testing.T) {
	t.Parallel()

	prev := GoalState{
		Hypotheses: []Hypothesis{
			{Name: "n", Type: "Nat"},
			{Name: "h", Type: "n > 0"},
			{Name: "ih", Type: "P n"},
		},
		Target: "P (n + 1)",
	}
	next := GoalState{
		Hypotheses: []Hypothesis{
			{Name: "n", Type: "Nat"},
			{Name: "h", Type: "n ≥ 1"},
			{Name: "hk", Type: "k < n"},
		},
		Target: "P n",
	}

	want := &StateDiff{
		AddedHyps:     []Hypothesis{{Name: "hk", Type: "k < n"}},
		RemovedHyps:   []Hypothesis{{Name: "ih", Type: "P n"}},
		ChangedHyps:   []HypothesisChange{{Name: "h", From: "n > 0", To: "n ≥ 1"}},
		TargetChanged: true,
		OldTarget:     "P (n + 1)",
		NewTarget:     "P n",
	}

	got := DiffStates(prev, next)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DiffStates mismatch (-want +got):\n%s", diff)
	}

	// Pure: repeated calls agree and inputs are untouched.
	assert.Empty(t, cmp.Diff(got, DiffStates(prev, next)))
	assert.Equal(t, "n > 0", prev.Hypotheses[1].Type)
}

func TestDiffStates_NoChange(t *testing.T) {
	t.Parallel()

	st := GoalState{
		Hypotheses: []Hypothesis{{Name: "n", Type: "Nat"}},
		Target:     "n = n",
	}
	got := DiffStates(st, st)
	assert.Empty(t, got.AddedHyps)
	assert.Empty(t, got.RemovedHyps)
	assert.Empty(t, got.ChangedHyps)
	assert.False(t, got.TargetChanged)
}
