package flw

import (
	"bufio"
	"fmt"
	"io"
)

// GroupState is a read-only copy of a group's membership.
type GroupState struct {
	ID        int   `json:"id"`
	Leader    int   `json:"leader"`
	Followers []int `json:"followers"`
}

// Report describes one completed generation.
type Report struct {
	Generation int      `json:"generation"`
	Stats      Stats    `json:"stats"`
	Best       Solution `json:"best"`

	// Swaps counts follower-over-leader promotions. Promoted is the group
	// whose leader took a walker's position, or NoGroup. ElitismTarget is the
	// agent that received the best-known position, or -1.
	Swaps         int `json:"swaps"`
	Promoted      int `json:"promoted"`
	ElitismTarget int `json:"elitismTarget"`

	Agents []AgentState `json:"agents"`
	Groups []GroupState `json:"groups"`
}

// Observer is called after every generation. A non-nil error stops the run
// and is returned from Run.
type Observer func(Report) error

func (p *Population) groupStates() []GroupState {
	states := make([]GroupState, len(p.Groups))
	for i, g := range p.Groups {
		states[i] = GroupState{
			ID:        g.ID,
			Leader:    g.Leader,
			Followers: append([]int(nil), g.Followers...),
		}
	}
	return states
}

// FormatPool writes the population of a report grouped by leader, followed by
// the walkers and the best-known solution. Output is buffered; the first
// write error is returned.
func FormatPool(w io.Writer, r Report) error {
	byID := make(map[int]AgentState, len(r.Agents))
	for _, a := range r.Agents {
		byID[a.ID] = a
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Gen : %d\n", r.Generation)
	for _, g := range r.Groups {
		fmt.Fprintf(bw, "leader: %d %s\n", g.ID, formatAgent(byID[g.Leader]))
		for _, f := range g.Followers {
			fmt.Fprintf(bw, "  %s\n", formatAgent(byID[f]))
		}
	}
	fmt.Fprintln(bw, "Walkers:")
	for _, a := range r.Agents {
		if a.Role == RoleWalker {
			fmt.Fprintf(bw, "  %s\n", formatAgent(a))
		}
	}
	fmt.Fprintf(bw, "best: %g:%v\n#####\n", r.Best.Fitness, r.Best.Position)
	return bw.Flush()
}

func formatAgent(a AgentState) string {
	if !a.Evaluated {
		return fmt.Sprintf("-:%v", a.Position)
	}
	return fmt.Sprintf("%g:%v", a.Fitness, a.Position)
}
