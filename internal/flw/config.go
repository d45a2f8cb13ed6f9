package flw

import (
	"errors"
	"fmt"
)

// LeaderStrategy selects how leaders move each generation.
type LeaderStrategy string

const (
	// LeaderStationary leaves leaders in place; they change only by promotion.
	LeaderStationary LeaderStrategy = "stationary"
	// LeaderWalk moves leaders with the walker rule.
	LeaderWalk LeaderStrategy = "walk"
	// LeaderDrift adds U(0, Phi2) to every coordinate of a leader.
	LeaderDrift LeaderStrategy = "drift"
)

// WalkerStrategy selects the walker perturbation.
type WalkerStrategy string

const (
	// WalkerSingle perturbs one randomly chosen coordinate.
	WalkerSingle WalkerStrategy = "single"
	// WalkerFull perturbs every coordinate, each with its own step scale.
	WalkerFull WalkerStrategy = "full"
)

// WalkerSizing selects how many walkers are created.
type WalkerSizing string

const (
	// SizingFollowers reuses the per-group follower count for the walker band.
	SizingFollowers WalkerSizing = "followers"
	// SizingRate uses floor(PoolSize * WalkerRate) walkers.
	SizingRate WalkerSizing = "rate"
)

// ElitismSelection picks the walker that receives the best-known position.
type ElitismSelection string

const (
	ElitismRandom ElitismSelection = "random"
	ElitismFirst  ElitismSelection = "first"
)

// Config holds every parameter of a run.
type Config struct {
	PoolSize   int     `yaml:"pool_size" json:"poolSize"`
	WalkerRate float64 `yaml:"walker_rate" json:"walkerRate"`
	Dimension  int     `yaml:"dimension" json:"dimension"`
	NLeaders   int     `yaml:"n_leaders" json:"nLeaders"`
	NGens      int     `yaml:"n_gens" json:"nGens"`

	// A and B bound the uniform initial sampling of every coordinate.
	A float64 `yaml:"a" json:"a"`
	B float64 `yaml:"b" json:"b"`

	// MinMagnitude and MaxMagnitude bound |x| of every coordinate after a move.
	MinMagnitude float64 `yaml:"min_magnitude" json:"minMagnitude"`
	MaxMagnitude float64 `yaml:"max_magnitude" json:"maxMagnitude"`

	// Phi1 scales the follower attraction, Phi2 the optional jitter/drift.
	Phi1       float64 `yaml:"phi1" json:"phi1"`
	Phi2       float64 `yaml:"phi2" json:"phi2"`
	StepScales int     `yaml:"step_scales" json:"stepScales"`

	LeaderStrategy LeaderStrategy   `yaml:"leader_strategy" json:"leaderStrategy"`
	FollowerJitter bool             `yaml:"follower_jitter" json:"followerJitter"`
	WalkerStrategy WalkerStrategy   `yaml:"walker_strategy" json:"walkerStrategy"`
	WalkerSizing   WalkerSizing     `yaml:"walker_sizing" json:"walkerSizing"`
	Elitism        ElitismSelection `yaml:"elitism" json:"elitism"`

	// ClampInitial applies the magnitude clamp to the initial sample instead
	// of waiting for the first move.
	ClampInitial bool `yaml:"clamp_initial" json:"clampInitial"`
}

// DefaultConfig returns the reference parameters.
func DefaultConfig() Config {
	return Config{
		PoolSize:       21,
		WalkerRate:     0.2,
		Dimension:      2,
		NLeaders:       4,
		NGens:          500,
		A:              -5,
		B:              5,
		MinMagnitude:   0,
		MaxMagnitude:   5,
		Phi1:           2,
		Phi2:           1,
		StepScales:     7,
		LeaderStrategy: LeaderStationary,
		WalkerStrategy: WalkerSingle,
		WalkerSizing:   SizingFollowers,
		Elitism:        ElitismRandom,
	}
}

// ErrInvalidConfig matches every configuration validation error.
var ErrInvalidConfig = &ConfigError{}

// ConfigError reports a configuration field that cannot start a run.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid config"
	}
	return "invalid config: " + e.Field + " " + e.Reason
}

func (e *ConfigError) Is(target error) bool {
	_, ok := target.(*ConfigError)
	return ok
}

// Validate checks that the configuration describes a non-degenerate
// population. Zero followers per group is allowed; zero leaders is not.
func (c Config) Validate() error {
	switch {
	case c.PoolSize <= 0:
		return &ConfigError{Field: "pool_size", Reason: "must be positive"}
	case c.NLeaders <= 0:
		return &ConfigError{Field: "n_leaders", Reason: "must be positive"}
	case c.PoolSize < c.NLeaders+1:
		return &ConfigError{Field: "pool_size", Reason: fmt.Sprintf("must be at least n_leaders+1 (%d)", c.NLeaders+1)}
	case c.Dimension <= 0:
		return &ConfigError{Field: "dimension", Reason: "must be positive"}
	case !(c.A < c.B):
		return &ConfigError{Field: "a", Reason: "must be less than b"}
	case !(c.WalkerRate >= 0 && c.WalkerRate < 1):
		return &ConfigError{Field: "walker_rate", Reason: "must be in [0, 1)"}
	case c.NGens < 0:
		return &ConfigError{Field: "n_gens", Reason: "cannot be negative"}
	case !(c.MinMagnitude >= 0):
		return &ConfigError{Field: "min_magnitude", Reason: "cannot be negative"}
	case !(c.MaxMagnitude >= c.MinMagnitude):
		return &ConfigError{Field: "max_magnitude", Reason: "must not be less than min_magnitude"}
	case !(c.Phi1 >= 0):
		return &ConfigError{Field: "phi1", Reason: "cannot be negative"}
	case !(c.Phi2 >= 0):
		return &ConfigError{Field: "phi2", Reason: "cannot be negative"}
	case c.StepScales < 1:
		return &ConfigError{Field: "step_scales", Reason: "must be at least 1"}
	}

	switch c.LeaderStrategy {
	case LeaderStationary, LeaderWalk, LeaderDrift:
	default:
		return &ConfigError{Field: "leader_strategy", Reason: fmt.Sprintf("unknown value %q", c.LeaderStrategy)}
	}
	switch c.WalkerStrategy {
	case WalkerSingle, WalkerFull:
	default:
		return &ConfigError{Field: "walker_strategy", Reason: fmt.Sprintf("unknown value %q", c.WalkerStrategy)}
	}
	switch c.WalkerSizing {
	case SizingFollowers, SizingRate:
	default:
		return &ConfigError{Field: "walker_sizing", Reason: fmt.Sprintf("unknown value %q", c.WalkerSizing)}
	}
	switch c.Elitism {
	case ElitismRandom, ElitismFirst:
	default:
		return &ConfigError{Field: "elitism", Reason: fmt.Sprintf("unknown value %q", c.Elitism)}
	}
	return nil
}

// Sizes returns the per-group follower count and the walker band size the
// configuration produces. Integer rounding may leave the population smaller
// than PoolSize; that is accepted.
func (c Config) Sizes() (followers, walkers int) {
	nWalkers := int(float64(c.PoolSize) * c.WalkerRate)
	followers = (c.PoolSize - nWalkers - c.NLeaders) / c.NLeaders
	if followers < 0 {
		followers = 0
	}
	if c.WalkerSizing == SizingRate {
		return followers, nWalkers
	}
	return followers, followers
}

// Total returns the number of agents the configuration produces.
func (c Config) Total() int {
	followers, walkers := c.Sizes()
	return c.NLeaders*(1+followers) + walkers
}

var errNoObjective = errors.New("objective cannot be nil")
