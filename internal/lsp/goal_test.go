package lsp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/leantrace/internal/trace"
)

func TestParseGoalState_OutsideProof(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"null", ""} {
		st, err := parseGoalState(json.RawMessage(raw))
		require.NoError(t, err)
		assert.True(t, st.Absent())
		assert.False(t, st.NoGoals)
	}
}

func TestParseGoalState_NoGoals(t *testing.T) {
	t.Parallel()

	st, err := parseGoalState(json.RawMessage(`{"rendered":"no goals","goals":[]}`))
	require.NoError(t, err)
	assert.True(t, st.NoGoals)
	assert.False(t, st.Absent())
}

func TestParseGoalState_HypothesesAndTarget(t *testing.T) {
	t.Parallel()

	goal := "n : Nat\nih : n + 0 = n\n⊢ n + 1 + 0 = n + 1"
	payload, err := json.Marshal(map[string]any{"rendered": "```\n" + goal + "\n```", "goals": []string{goal}})
	require.NoError(t, err)

	st, err := parseGoalState(payload)
	require.NoError(t, err)
	assert.Equal(t, []trace.Hypothesis{
		{Name: "n", Type: "Nat"},
		{Name: "ih", Type: "n + 0 = n"},
	}, st.Hypotheses)
	assert.Equal(t, "n + 1 + 0 = n + 1", st.Target)
	assert.Empty(t, st.OtherGoals)
}

func TestParseGoalState_MultipleGoals(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(map[string]any{"goals": []string{
		"⊢ P",
		"⊢ Q",
		"h : R\n⊢ S",
	}})
	require.NoError(t, err)

	st, err := parseGoalState(payload)
	require.NoError(t, err)
	assert.Equal(t, "P", st.Target)
	// Secondary goals stay verbatim; a change in them still changes the key.
	assert.Equal(t, []string{"⊢ Q", "h : R\n⊢ S"}, st.OtherGoals)

	single, err := parseGoalState(json.RawMessage(`{"goals":["⊢ P"]}`))
	require.NoError(t, err)
	assert.NotEqual(t, single.Key(), st.Key())
}

func TestParseGoal_ContinuationLines(t *testing.T) {
	t.Parallel()

	goal := "h : match n with\n  | 0 => True\n  | _ => False\n⊢ n = 0"
	st := parseGoal(goal)
	require.Len(t, st.Hypotheses, 1)
	assert.Equal(t, "h", st.Hypotheses[0].Name)
	assert.Contains(t, st.Hypotheses[0].Type, "| 0 => True")
	assert.Equal(t, "n = 0", st.Target)
}

func TestParseGoal_MultiLineTarget(t *testing.T) {
	t.Parallel()

	st := parseGoal("⊢ ∀ n : Nat,\n    n + 0 = n")
	assert.Empty(t, st.Hypotheses)
	assert.Equal(t, "∀ n : Nat,\n    n + 0 = n", st.Target)
}

func TestParseGoalState_MalformedPayload(t *testing.T) {
	t.Parallel()

	_, err := parseGoalState(json.RawMessage(`[1,2,3]`))
	assert.ErrorIs(t, err, ErrProtocol)
}
