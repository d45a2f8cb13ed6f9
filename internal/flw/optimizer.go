// Package flw implements a leader/follower/walker population optimizer for
// minimizing a black-box objective over a real-valued box domain.
//
// Agents are partitioned into groups, each anchored by a leader with a fixed
// band of followers, plus a band of unaffiliated walkers. Every generation the
// optimizer evaluates all agents, promotes fitter followers over their
// leaders, migrates a superior walker position into the best leader, moves
// every agent by its role's rule, and re-seeds one walker with the best-known
// solution.
package flw

import (
	"log/slog"
	"math/rand"
)

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithSeed seeds a math/rand generator for the run.
func WithSeed(seed int64) Option {
	return func(o *Optimizer) {
		o.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRand uses rng for every random draw of the run.
func WithRand(rng Rand) Option {
	return func(o *Optimizer) {
		o.rng = rng
	}
}

// WithObserver registers fn to be called after every generation.
func WithObserver(fn Observer) Option {
	return func(o *Optimizer) {
		o.observers = append(o.observers, fn)
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Optimizer) {
		o.log = l
	}
}

// WithStagnation sets how stale generations are counted in Stats.
func WithStagnation(cfg StagnationConfig) Option {
	return func(o *Optimizer) {
		o.tracker = NewStagnationTracker(cfg)
	}
}

// Result holds the output of a run.
type Result struct {
	Best        Solution `json:"best"`
	Generations int      `json:"generations"`
	Evaluations int      `json:"evaluations"`
	History     []Stats  `json:"history"`
}

// Optimizer runs the generation loop. It is not safe for concurrent use;
// separate Optimizers share nothing and may run in parallel.
type Optimizer struct {
	cfg       Config
	obj       Objective
	rng       Rand
	log       *slog.Logger
	observers []Observer

	pop     *Population
	mover   *Mover
	tracker *StagnationTracker

	best    Solution
	hasBest bool
	gen     int
	evals   int
	history []Stats
}

// New validates cfg and initializes the population. Without WithSeed or
// WithRand the run is seeded with 1.
func New(cfg Config, obj Objective, opts ...Option) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNoObjective
	}

	o := &Optimizer{
		cfg:     cfg,
		obj:     obj,
		log:     slog.Default(),
		tracker: NewStagnationTracker(DefaultStagnationConfig()),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(1))
	}
	o.tracker.log = o.log

	o.pop = NewPopulation(cfg, o.rng)
	o.mover = NewMover(cfg, o.rng)
	return o, nil
}

// Config returns the run configuration.
func (o *Optimizer) Config() Config { return o.cfg }

// Population exposes the live population. Callers must not hold on to it
// across calls to Step.
func (o *Optimizer) Population() *Population { return o.pop }

// Generation returns the number of completed generations.
func (o *Optimizer) Generation() int { return o.gen }

// Evaluations returns the number of objective calls so far.
func (o *Optimizer) Evaluations() int { return o.evals }

// Best returns a copy of the best-known solution and whether any agent has
// been evaluated yet.
func (o *Optimizer) Best() (Solution, bool) {
	if !o.hasBest {
		return Solution{}, false
	}
	return Solution{Position: copyVec(o.best.Position), Fitness: o.best.Fitness}, true
}

// evaluate scores every agent in creation order and updates the best-known
// solution on a strictly lower fitness. The objective receives a copy of the
// position.
func (o *Optimizer) evaluate(generation int) ([]float64, error) {
	values := make([]float64, len(o.pop.Agents))
	for i, a := range o.pop.Agents {
		f, err := o.obj.Evaluate(copyVec(a.Position))
		if err != nil {
			return nil, &EvaluationError{Generation: generation, Agent: a.ID, Err: err}
		}
		a.Fitness = f
		a.Evaluated = true
		o.evals++
		values[i] = f

		if !o.hasBest || f < o.best.Fitness {
			o.best = newSolution(a)
			o.hasBest = true
		}
	}
	return values, nil
}

// Step runs one generation: evaluate, replace leaders, promote a walker, move,
// and apply elitism.
func (o *Optimizer) Step() (Report, error) {
	gen := o.gen + 1

	values, err := o.evaluate(gen)
	if err != nil {
		return Report{}, err
	}

	swaps := ReplaceLeaders(o.pop)
	promoted, _ := PromoteWalker(o.pop)
	o.mover.Move(o.pop)
	target := Elitism(o.pop, o.best, o.cfg.Elitism, o.rng)
	o.gen = gen

	stale := o.tracker.Update(o.best.Fitness)
	stats := computeStats(gen, len(values), values, o.best.Fitness, stale)
	o.history = append(o.history, stats)

	if swaps > 0 || promoted != NoGroup {
		o.log.Debug("Leadership changed", "generation", gen, "swaps", swaps, "promoted_group", promoted)
	}

	report := Report{
		Generation:    gen,
		Stats:         stats,
		Best:          Solution{Position: copyVec(o.best.Position), Fitness: o.best.Fitness},
		Swaps:         swaps,
		Promoted:      promoted,
		ElitismTarget: target,
		Agents:        o.pop.Snapshot(),
		Groups:        o.pop.groupStates(),
	}
	for _, fn := range o.observers {
		if err := fn(report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Run executes the remaining generations up to the configured count and
// returns the best-known solution. With zero generations the initial
// population is evaluated once, without any movement, so the result is the
// best initial agent.
func (o *Optimizer) Run() (*Result, error) {
	o.log.Info("Starting run",
		"agents", o.pop.Len(),
		"groups", len(o.pop.Groups),
		"walkers", len(o.pop.Walkers),
		"generations", o.cfg.NGens,
	)

	if o.cfg.NGens == 0 && !o.hasBest {
		if _, err := o.evaluate(0); err != nil {
			return nil, err
		}
	}

	for o.gen < o.cfg.NGens {
		if _, err := o.Step(); err != nil {
			return nil, err
		}
	}

	best, _ := o.Best()
	o.log.Info("Run complete",
		"generations", o.gen,
		"evaluations", o.evals,
		"best_fitness", best.Fitness,
	)

	return &Result{
		Best:        best,
		Generations: o.gen,
		Evaluations: o.evals,
		History:     append([]Stats(nil), o.history...),
	}, nil
}
