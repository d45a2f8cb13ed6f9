package flw

import "math"

// StepLadder returns the walker step scales 10^(1-k) for k = 0..n-1.
func StepLadder(n int) []float64 {
	ladder := make([]float64, n)
	for k := range ladder {
		ladder[k] = math.Pow(10, float64(1-k))
	}
	return ladder
}

// Mover applies the per-role movement rules.
type Mover struct {
	cfg    Config
	rng    Rand
	ladder []float64
}

// NewMover creates a mover drawing from rng.
func NewMover(cfg Config, rng Rand) *Mover {
	return &Mover{cfg: cfg, rng: rng, ladder: StepLadder(cfg.StepScales)}
}

// Move updates every agent once, in creation order, and clamps each result to
// the agent's magnitude bounds. Followers are attracted to their leader's
// position as it stood before this call, so the outcome does not depend on
// where the leader sits in the iteration order.
func (m *Mover) Move(pop *Population) {
	leaders := make([][]float64, len(pop.Groups))
	for g := range pop.Groups {
		leaders[g] = copyVec(pop.Leader(g).Position)
	}

	for _, a := range pop.Agents {
		switch a.Role {
		case RoleLeader:
			m.moveLeader(a)
		case RoleFollower:
			m.moveFollower(a, leaders[a.Group])
		case RoleWalker:
			m.moveWalker(a)
		}
		a.Clamp()
	}
}

func (m *Mover) moveLeader(a *Agent) {
	switch m.cfg.LeaderStrategy {
	case LeaderWalk:
		m.moveWalker(a)
	case LeaderDrift:
		for i := range a.Position {
			a.Position[i] += uniform(m.rng, 0, m.cfg.Phi2)
		}
	}
}

// moveFollower applies x_i + e_i*(l_i - x_i) [+ v_i].
func (m *Mover) moveFollower(a *Agent, leader []float64) {
	for i := range a.Position {
		e := uniform(m.rng, 0, m.cfg.Phi1)
		step := e * (leader[i] - a.Position[i])
		if m.cfg.FollowerJitter {
			step += uniform(m.rng, 0, m.cfg.Phi2)
		}
		a.Position[i] += step
	}
}

func (m *Mover) moveWalker(a *Agent) {
	if m.cfg.WalkerStrategy == WalkerFull {
		for i := range a.Position {
			a.Position[i] += uniform(m.rng, 0, m.sigma())
		}
		return
	}
	w := uniform(m.rng, 0, m.sigma())
	j := m.rng.Intn(len(a.Position))
	a.Position[j] += w
}

func (m *Mover) sigma() float64 {
	return m.ladder[m.rng.Intn(len(m.ladder))]
}
