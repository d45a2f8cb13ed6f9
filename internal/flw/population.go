package flw

// Rand is the source of randomness threaded through a run. *rand.Rand from
// math/rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

func uniform(rng Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

// Group is one leader and its follower band. Leader and Followers index into
// Population.Agents.
type Group struct {
	ID        int
	Leader    int
	Followers []int
}

// Population owns every agent of a run.
type Population struct {
	// Agents is in creation order: each group's leader followed by its
	// followers, then the walker band. The order never changes; promotions
	// only rewrite roles and group membership.
	Agents  []*Agent
	Groups  []*Group
	Walkers []int

	followers int
}

// NewPopulation builds the grouped population described by cfg, drawing every
// coordinate uniformly from [cfg.A, cfg.B]. cfg is assumed to be valid.
func NewPopulation(cfg Config, rng Rand) *Population {
	followers, walkers := cfg.Sizes()
	pop := &Population{
		Agents:    make([]*Agent, 0, cfg.Total()),
		Groups:    make([]*Group, cfg.NLeaders),
		Walkers:   make([]int, 0, walkers),
		followers: followers,
	}

	for g := 0; g < cfg.NLeaders; g++ {
		group := &Group{ID: g, Followers: make([]int, 0, followers)}
		group.Leader = pop.add(cfg, rng, RoleLeader, g)
		for i := 0; i < followers; i++ {
			group.Followers = append(group.Followers, pop.add(cfg, rng, RoleFollower, g))
		}
		pop.Groups[g] = group
	}
	for i := 0; i < walkers; i++ {
		pop.Walkers = append(pop.Walkers, pop.add(cfg, rng, RoleWalker, NoGroup))
	}
	return pop
}

func (p *Population) add(cfg Config, rng Rand, role Role, group int) int {
	pos := make([]float64, cfg.Dimension)
	for i := range pos {
		pos[i] = uniform(rng, cfg.A, cfg.B)
	}
	a := &Agent{
		ID:       len(p.Agents),
		Position: pos,
		Role:     role,
		Group:    group,
		Min:      cfg.MinMagnitude,
		Max:      cfg.MaxMagnitude,
	}
	if cfg.ClampInitial {
		a.Clamp()
	}
	p.Agents = append(p.Agents, a)
	return a.ID
}

// Len returns the number of agents.
func (p *Population) Len() int { return len(p.Agents) }

// FollowersPerGroup returns the follower band size fixed at creation.
func (p *Population) FollowersPerGroup() int { return p.followers }

// Leader returns the current leader of group g.
func (p *Population) Leader(g int) *Agent { return p.Agents[p.Groups[g].Leader] }

// WalkerAgents returns the walker band in creation order.
func (p *Population) WalkerAgents() []*Agent {
	walkers := make([]*Agent, len(p.Walkers))
	for i, idx := range p.Walkers {
		walkers[i] = p.Agents[idx]
	}
	return walkers
}

// Snapshot copies the state of every agent in creation order.
func (p *Population) Snapshot() []AgentState {
	states := make([]AgentState, len(p.Agents))
	for i, a := range p.Agents {
		states[i] = a.state()
	}
	return states
}

// argmin returns the position in idx of the agent with the lowest fitness.
// The first of equal minima wins and a NaN never beats the incumbent, matching
// a plain "less than" scan.
func (p *Population) argmin(idx []int) int {
	best := 0
	for i := 1; i < len(idx); i++ {
		if p.Agents[idx[i]].Fitness < p.Agents[idx[best]].Fitness {
			best = i
		}
	}
	return best
}
