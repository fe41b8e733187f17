package trace

// StateDiff is a structural diff between two adjacent goal states, for
// display in the viewer. All slices preserve the hypothesis order of the
// state they came from; nothing here depends on map iteration.
type StateDiff struct {
	AddedHyps     []Hypothesis       `json:"added_hyps,omitempty"`
	RemovedHyps   []Hypothesis       `json:"removed_hyps,omitempty"`
	ChangedHyps   []HypothesisChange `json:"changed_hyps,omitempty"`
	TargetChanged bool               `json:"target_changed,omitempty"`
	OldTarget     string             `json:"old_target,omitempty"`
	NewTarget     string             `json:"new_target,omitempty"`
}

// HypothesisChange records a hypothesis whose displayed type changed.
type HypothesisChange struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

// DiffStates computes the structural difference from prev to next. It is
// pure: neither argument is modified and repeated calls yield equal results.
func DiffStates(prev, next GoalState) *StateDiff {
	d := &StateDiff{}

	prevByName := make(map[string]string, len(prev.Hypotheses))
	for _, h := range prev.Hypotheses {
		prevByName[h.Name] = h.Type
	}
	nextByName := make(map[string]string, len(next.Hypotheses))
	for _, h := range next.Hypotheses {
		nextByName[h.Name] = h.Type
	}

	for _, h := range next.Hypotheses {
		old, ok := prevByName[h.Name]
		switch {
		case !ok:
			d.AddedHyps = append(d.AddedHyps, h)
		case old != h.Type:
			d.ChangedHyps = append(d.ChangedHyps, HypothesisChange{Name: h.Name, From: old, To: h.Type})
		}
	}
	for _, h := range prev.Hypotheses {
		if _, ok := nextByName[h.Name]; !ok {
			d.RemovedHyps = append(d.RemovedHyps, h)
		}
	}

	if prev.Target != next.Target {
		d.TargetChanged = true
		d.OldTarget = prev.Target
		d.NewTarget = next.Target
	}
	return d
}
