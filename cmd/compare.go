package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/flwopt/internal/bench"
	"github.com/cwbudde/flwopt/internal/flw"
	"github.com/cwbudde/flwopt/internal/opt"
)

var (
	compareObjectives string
	compareDim        int
	compareGens       int
	compareMayflyPop  int
	compareSeed       int64
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the optimizer against Mayfly on benchmark objectives",
	Long: `Runs the leader/follower/walker optimizer and the Mayfly algorithm on each
objective with the same generation count and seed, and prints the best
fitness, the gap to the known optimum and the evaluation count of both.`,
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringVar(&compareObjectives, "objectives", "sphere,rastrigin,ackley,rosenbrock,styblinski", "Comma-separated benchmark names")
	compareCmd.Flags().IntVar(&compareDim, "dim", 4, "Search space dimension")
	compareCmd.Flags().IntVar(&compareGens, "gens", 200, "Generations (Mayfly iterations)")
	compareCmd.Flags().IntVar(&compareMayflyPop, "mayfly-pop", 20, "Mayfly population size (at least 20)")
	compareCmd.Flags().Int64Var(&compareSeed, "seed", 1, "Random seed")

	rootCmd.AddCommand(compareCmd)
}

// comparison is one algorithm's result on one objective.
type comparison struct {
	Objective   string
	Algorithm   string
	Best        float64
	Optimum     float64
	Evaluations int
	Elapsed     time.Duration
}

// Gap is the distance of the best fitness from the known optimum.
func (c comparison) Gap() float64 { return c.Best - c.Optimum }

func runCompare(cmd *cobra.Command, args []string) error {
	names := strings.Split(compareObjectives, ",")
	results, err := compareOptimizers(names, compareDim, compareGens, compareMayflyPop, compareSeed)
	if err != nil {
		return err
	}
	return writeComparison(cmd.OutOrStdout(), results)
}

// compareOptimizers runs every (objective, algorithm) pair concurrently.
// Results are ordered by objective, then flw before mayfly.
func compareOptimizers(names []string, dim, gens, mayflyPop int, seed int64) ([]comparison, error) {
	funcs := make([]bench.Func, 0, len(names))
	for _, name := range names {
		fn, err := bench.Lookup(strings.TrimSpace(name), dim)
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, fn)
	}

	cfg := flw.DefaultConfig()
	cfg.NGens = gens
	algorithms := []opt.Optimizer{
		opt.NewFLW(cfg, seed),
		opt.NewMayfly(gens, mayflyPop, seed),
	}

	results := make([]comparison, len(funcs)*len(algorithms))
	var wg sync.WaitGroup
	for i, fn := range funcs {
		for k, algo := range algorithms {
			wg.Add(1)
			go func(slot int, fn bench.Func, algo opt.Optimizer) {
				defer wg.Done()
				results[slot] = runComparison(fn, algo, dim)
			}(i*len(algorithms)+k, fn, algo)
		}
	}
	wg.Wait()
	return results, nil
}

func runComparison(fn bench.Func, algo opt.Optimizer, dim int) comparison {
	low, up := fn.Bounds()
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for d := range lower {
		lower[d], upper[d] = low, up
	}

	evals := 0
	counted := func(x []float64) float64 {
		evals++
		return fn.Eval(x)
	}

	start := time.Now()
	_, best := algo.Run(counted, lower, upper, dim)
	elapsed := time.Since(start)

	slog.Debug("Comparison run finished",
		"objective", fn.Name(),
		"algorithm", algo.Name(),
		"best", best,
		"evaluations", evals,
		"elapsed", elapsed,
	)

	return comparison{
		Objective:   fn.Name(),
		Algorithm:   algo.Name(),
		Best:        best,
		Optimum:     fn.Optimum(),
		Evaluations: evals,
		Elapsed:     elapsed,
	}
}

func writeComparison(out io.Writer, results []comparison) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OBJECTIVE\tALGORITHM\tBEST\tGAP\tEVALS\tTIME")
	fmt.Fprintln(w, "---------\t---------\t----\t---\t-----\t----")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%.6g\t%.3g\t%d\t%s\n",
			r.Objective,
			r.Algorithm,
			r.Best,
			r.Gap(),
			r.Evaluations,
			r.Elapsed.Round(time.Millisecond),
		)
	}
	return w.Flush()
}
