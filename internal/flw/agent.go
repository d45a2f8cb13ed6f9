package flw

import "fmt"

// Role is the part an agent plays in the population.
type Role int

const (
	RoleLeader Role = iota
	RoleFollower
	RoleWalker
)

// NoGroup is the group index carried by walkers.
const NoGroup = -1

func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleFollower:
		return "follower"
	case RoleWalker:
		return "walker"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// MarshalText encodes the role by name so reports read naturally in JSON.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "leader":
		*r = RoleLeader
	case "follower":
		*r = RoleFollower
	case "walker":
		*r = RoleWalker
	default:
		return fmt.Errorf("unknown role: %q", string(b))
	}
	return nil
}

// Agent is a single searcher. Fitness is meaningful only once Evaluated is
// true; lower is better.
type Agent struct {
	ID        int
	Position  []float64
	Fitness   float64
	Evaluated bool
	Role      Role
	Group     int // NoGroup for walkers

	// Min and Max are the magnitude bounds applied after every move.
	Min, Max float64
}

// Clamp applies the agent's own magnitude bounds to its position.
func (a *Agent) Clamp() {
	ClampMagnitude(a.Position, a.Min, a.Max)
}

func (a *Agent) String() string {
	if !a.Evaluated {
		return fmt.Sprintf("-:%v:%s", a.Position, a.Role)
	}
	return fmt.Sprintf("%g:%v:%s", a.Fitness, a.Position, a.Role)
}

// Solution is a snapshot of a position and its fitness. Position never
// aliases an agent's live slice.
type Solution struct {
	Position []float64 `json:"position"`
	Fitness  float64   `json:"fitness"`
}

func newSolution(a *Agent) Solution {
	return Solution{Position: copyVec(a.Position), Fitness: a.Fitness}
}

// AgentState is a read-only copy of an agent used for reporting.
type AgentState struct {
	ID        int       `json:"id"`
	Role      Role      `json:"role"`
	Group     int       `json:"group"`
	Position  []float64 `json:"position"`
	Fitness   float64   `json:"fitness"`
	Evaluated bool      `json:"evaluated"`
}

func (a *Agent) state() AgentState {
	return AgentState{
		ID:        a.ID,
		Role:      a.Role,
		Group:     a.Group,
		Position:  copyVec(a.Position),
		Fitness:   a.Fitness,
		Evaluated: a.Evaluated,
	}
}
