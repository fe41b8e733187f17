package trace

import (
	"context"
	"sort"
)

// Querier answers goal-state queries at source positions. A live session
// satisfies this; tests substitute a scripted implementation. Queries against
// one Querier are issued sequentially, never concurrently.
type Querier interface {
	GoalAt(ctx context.Context, pos Position) (GoalState, error)
}

// Sample is one observed (position, state) pair.
type Sample struct {
	Pos   Position
	State GoalState
}

// Sampler drives a Querier over a file's candidate boundaries and returns
// every observed sample in position order. Results are memoized so bisection
// never queries the same position twice.
type Sampler struct {
	q       Querier
	memo    map[Position]GoalState
	queries int
}

// NewSampler returns a sampler over q.
func NewSampler(q Querier) *Sampler {
	return &Sampler{q: q, memo: make(map[Position]GoalState)}
}

// Queries returns the number of protocol round trips issued so far.
func (s *Sampler) Queries() int {
	return s.queries
}

func (s *Sampler) at(ctx context.Context, pos Position) (GoalState, error) {
	if st, ok := s.memo[pos]; ok {
		return st, nil
	}
	st, err := s.q.GoalAt(ctx, pos)
	if err != nil {
		return GoalState{}, err
	}
	s.queries++
	s.memo[pos] = st
	return st, nil
}

// Run samples the given candidate boundaries under mode and returns all
// observed samples sorted by position. Boundaries must already be in
// position order; an empty boundary set yields no samples.
func (s *Sampler) Run(ctx context.Context, boundaries []Position, mode Mode) ([]Sample, error) {
	if len(boundaries) == 0 {
		return nil, nil
	}
	switch mode.Kind {
	case ModeAdaptive:
		if err := s.runAdaptive(ctx, boundaries, mode.GridStride); err != nil {
			return nil, err
		}
	default:
		for _, pos := range boundaries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if _, err := s.at(ctx, pos); err != nil {
				return nil, err
			}
		}
	}
	return s.collect(), nil
}

// runAdaptive queries every stride-th boundary plus the last, then bisects
// each adjacent grid pair whose states differ to find the boundary where the
// state changes. Bisection keeps the invariant state(lo) == state(grid left),
// state(hi) != state(grid left); it converges on hi, the earliest boundary
// observed with the new state, attributing the transition to the token that
// introduces it.
func (s *Sampler) runAdaptive(ctx context.Context, boundaries []Position, stride int) error {
	var grid []int
	for i := 0; i < len(boundaries); i += stride {
		grid = append(grid, i)
	}
	if last := len(boundaries) - 1; grid[len(grid)-1] != last {
		grid = append(grid, last)
	}

	keys := make([]string, len(grid))
	for i, bi := range grid {
		if err := ctx.Err(); err != nil {
			return err
		}
		st, err := s.at(ctx, boundaries[bi])
		if err != nil {
			return err
		}
		keys[i] = st.Key()
	}

	for i := 0; i+1 < len(grid); i++ {
		if keys[i] == keys[i+1] {
			continue
		}
		lo, hi := grid[i], grid[i+1]
		for hi-lo > 1 {
			if err := ctx.Err(); err != nil {
				return err
			}
			mid := (lo + hi) / 2
			st, err := s.at(ctx, boundaries[mid])
			if err != nil {
				return err
			}
			if st.Key() == keys[i] {
				lo = mid
			} else {
				hi = mid
			}
		}
	}
	return nil
}

func (s *Sampler) collect() []Sample {
	out := make([]Sample, 0, len(s.memo))
	for pos, st := range s.memo {
		out = append(out, Sample{Pos: pos, State: st})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos.Before(out[j].Pos) })
	return out
}
