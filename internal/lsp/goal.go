package lsp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mvp-joe/leantrace/internal/trace"
)

// plainGoalResult mirrors the Lean server's $/lean/plainGoal payload: the
// goals as plain pretty-printed strings plus a rendered markdown block.
type plainGoalResult struct {
	Rendered string   `json:"rendered"`
	Goals    []string `json:"goals"`
}

// parseGoalState converts a plainGoal response into a GoalState. A null
// result means the position is outside any proof and maps to the zero state;
// an empty goal list is the "no goals" sentinel (proof finished).
func parseGoalState(raw json.RawMessage) (trace.GoalState, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return trace.GoalState{}, nil
	}
	var res plainGoalResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return trace.GoalState{}, fmt.Errorf("%w: decode goal payload: %v", ErrProtocol, err)
	}
	if len(res.Goals) == 0 {
		return trace.GoalState{NoGoals: true}, nil
	}
	st := parseGoal(res.Goals[0])
	for _, g := range res.Goals[1:] {
		st.OtherGoals = append(st.OtherGoals, g)
	}
	return st, nil
}

// parseGoal splits one pretty-printed goal into hypotheses and target. The
// format is one "name : type" line per hypothesis followed by a "⊢ target"
// line; hypothesis types may continue over indented lines.
func parseGoal(text string) trace.GoalState {
	var st trace.GoalState
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if rest, ok := strings.CutPrefix(line, "⊢ "); ok {
			parts := append([]string{rest}, lines[i+1:]...)
			st.Target = strings.TrimSpace(strings.Join(parts, "\n"))
			break
		}
		name, typ, ok := strings.Cut(line, " : ")
		if !ok {
			continue
		}
		// Gather continuation lines (indented) into the type.
		for i+1 < len(lines) && strings.HasPrefix(lines[i+1], " ") && !strings.HasPrefix(strings.TrimSpace(lines[i+1]), "⊢") {
			i++
			typ += "\n" + lines[i]
		}
		st.Hypotheses = append(st.Hypotheses, trace.Hypothesis{
			Name: strings.TrimSpace(name),
			Type: strings.TrimSpace(typ),
		})
	}
	return st
}
