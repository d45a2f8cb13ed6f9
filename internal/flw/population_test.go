package flw

import (
	"math/rand"
	"testing"
)

func TestConfigSizes(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		wantFollowers int
		wantWalkers   int
		wantTotal     int
	}{
		{"default", func(c *Config) {}, 3, 3, 19},
		{"rate sizing", func(c *Config) { c.WalkerSizing = SizingRate }, 3, 4, 20},
		{"no followers", func(c *Config) { c.PoolSize = 5; c.WalkerRate = 0 }, 0, 0, 4},
		{"single pair", func(c *Config) { c.PoolSize = 2; c.NLeaders = 1; c.WalkerRate = 0 }, 1, 1, 3},
		{"single pair rate", func(c *Config) {
			c.PoolSize = 2
			c.NLeaders = 1
			c.WalkerRate = 0
			c.WalkerSizing = SizingRate
		}, 1, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			f, w := cfg.Sizes()
			if f != tt.wantFollowers || w != tt.wantWalkers {
				t.Errorf("Sizes() = (%d, %d), want (%d, %d)", f, w, tt.wantFollowers, tt.wantWalkers)
			}
			if got := cfg.Total(); got != tt.wantTotal {
				t.Errorf("Total() = %d, want %d", got, tt.wantTotal)
			}
		})
	}
}

func TestNewPopulationLayout(t *testing.T) {
	cfg := DefaultConfig()
	pop := NewPopulation(cfg, rand.New(rand.NewSource(1)))

	if pop.Len() != cfg.Total() {
		t.Fatalf("Len() = %d, want %d", pop.Len(), cfg.Total())
	}
	if len(pop.Groups) != cfg.NLeaders {
		t.Fatalf("got %d groups, want %d", len(pop.Groups), cfg.NLeaders)
	}
	if pop.FollowersPerGroup() != 3 {
		t.Errorf("FollowersPerGroup() = %d, want 3", pop.FollowersPerGroup())
	}

	// Creation order: leader, its followers, next group, then walkers.
	for g, group := range pop.Groups {
		base := g * 4
		if group.Leader != base {
			t.Errorf("group %d leader = %d, want %d", g, group.Leader, base)
		}
		for i, f := range group.Followers {
			if f != base+1+i {
				t.Errorf("group %d follower %d = %d, want %d", g, i, f, base+1+i)
			}
			if a := pop.Agents[f]; a.Role != RoleFollower || a.Group != g {
				t.Errorf("agent %d: role=%v group=%d", f, a.Role, a.Group)
			}
		}
		if l := pop.Leader(g); l.Role != RoleLeader || l.Group != g {
			t.Errorf("leader of group %d: role=%v group=%d", g, l.Role, l.Group)
		}
	}
	for i, w := range pop.WalkerAgents() {
		if w.ID != 16+i {
			t.Errorf("walker %d has id %d, want %d", i, w.ID, 16+i)
		}
		if w.Role != RoleWalker || w.Group != NoGroup {
			t.Errorf("walker %d: role=%v group=%d", i, w.Role, w.Group)
		}
	}

	for _, a := range pop.Agents {
		if len(a.Position) != cfg.Dimension {
			t.Fatalf("agent %d has dimension %d", a.ID, len(a.Position))
		}
		for _, x := range a.Position {
			if x < cfg.A || x > cfg.B {
				t.Errorf("agent %d coordinate %v outside [%v, %v]", a.ID, x, cfg.A, cfg.B)
			}
		}
		if a.Evaluated {
			t.Errorf("agent %d evaluated before any generation", a.ID)
		}
	}
}

func TestNewPopulationClampInitial(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dimension = 5
	cfg.A, cfg.B = -10, 10
	cfg.MinMagnitude, cfg.MaxMagnitude = 1, 3
	cfg.ClampInitial = true

	pop := NewPopulation(cfg, rand.New(rand.NewSource(7)))
	for _, a := range pop.Agents {
		if !InMagnitude(a.Position, 1, 3) {
			t.Errorf("agent %d not clamped: %v", a.ID, a.Position)
		}
	}
}

func TestNewPopulationReproducible(t *testing.T) {
	cfg := DefaultConfig()
	p1 := NewPopulation(cfg, rand.New(rand.NewSource(42)))
	p2 := NewPopulation(cfg, rand.New(rand.NewSource(42)))

	for i := range p1.Agents {
		for d := range p1.Agents[i].Position {
			if p1.Agents[i].Position[d] != p2.Agents[i].Position[d] {
				t.Fatalf("agent %d differs between equally seeded populations", i)
			}
		}
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	pop := NewPopulation(DefaultConfig(), rand.New(rand.NewSource(1)))
	snap := pop.Snapshot()
	snap[0].Position[0] = 1234

	if pop.Agents[0].Position[0] == 1234 {
		t.Error("Snapshot aliases agent positions")
	}
}

func TestArgminFirstOfEqual(t *testing.T) {
	pop := NewPopulation(DefaultConfig(), rand.New(rand.NewSource(1)))
	for i, f := range []float64{3, 1, 1, 2} {
		pop.Agents[i].Fitness = f
	}
	if got := pop.argmin([]int{0, 1, 2, 3}); got != 1 {
		t.Errorf("argmin = %d, want 1", got)
	}
}
