package trace

import "fmt"

// ModeKind selects the sampling strategy.
type ModeKind int

const (
	// ModeExhaustive queries every candidate token boundary.
	ModeExhaustive ModeKind = iota
	// ModeAdaptive queries a coarse grid of boundaries and bisects only
	// between adjacent grid samples whose states differ. Between grid samples
	// with equal states the state is assumed constant: two transitions that
	// net back to the original state inside one grid interval go undetected.
	// That trade-off is deliberate; tune GridStride to change it.
	ModeAdaptive
)

// Mode is the closed sampling-mode variant. Adaptive mode carries its grid
// stride; exhaustive mode carries no parameters. Construct via Exhaustive or
// Adaptive and validate at configuration time, not per call.
type Mode struct {
	Kind       ModeKind
	GridStride int
}

// DefaultGridStride is the adaptive grid spacing in token boundaries.
const DefaultGridStride = 16

// Exhaustive returns the exhaustive sampling mode.
func Exhaustive() Mode {
	return Mode{Kind: ModeExhaustive}
}

// Adaptive returns the adaptive sampling mode with the given grid stride.
func Adaptive(stride int) Mode {
	return Mode{Kind: ModeAdaptive, GridStride: stride}
}

// Validate rejects malformed modes.
func (m Mode) Validate() error {
	switch m.Kind {
	case ModeExhaustive:
		return nil
	case ModeAdaptive:
		if m.GridStride < 2 {
			return fmt.Errorf("adaptive grid stride must be >= 2, got %d", m.GridStride)
		}
		return nil
	default:
		return fmt.Errorf("unknown sampling mode %d", int(m.Kind))
	}
}

func (m Mode) String() string {
	switch m.Kind {
	case ModeExhaustive:
		return "exhaustive"
	case ModeAdaptive:
		return "adaptive"
	default:
		return fmt.Sprintf("mode(%d)", int(m.Kind))
	}
}
