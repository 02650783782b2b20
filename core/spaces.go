package core

import "fmt"

// SpaceKind enumerates the supported space variants. The set is closed:
// adding image observations or continuous actions means adding a variant
// here, not falling through some dynamic dispatch.
type SpaceKind int

const (
	// VectorSpace is a fixed-length continuous observation vector.
	VectorSpace SpaceKind = iota
	// DiscreteSpace is a finite set of action indices.
	DiscreteSpace
)

func (k SpaceKind) String() string {
	switch k {
	case VectorSpace:
		return "vector"
	case DiscreteSpace:
		return "discrete"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Space describes either an observation or an action space.
type Space struct {
	Kind SpaceKind

	// Dim is the vector length for VectorSpace.
	Dim int
	// N is the number of actions for DiscreteSpace.
	N int
}

func Vector(dim int) Space {
	return Space{Kind: VectorSpace, Dim: dim}
}

func Discrete(n int) Space {
	return Space{Kind: DiscreteSpace, N: n}
}

func (s Space) String() string {
	switch s.Kind {
	case VectorSpace:
		return fmt.Sprintf("vector(%d)", s.Dim)
	case DiscreteSpace:
		return fmt.Sprintf("discrete(%d)", s.N)
	default:
		return s.Kind.String()
	}
}
