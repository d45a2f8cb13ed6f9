package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/flwopt/internal/bench"
	"github.com/cwbudde/flwopt/internal/config"
	"github.com/cwbudde/flwopt/internal/flw"
	"github.com/cwbudde/flwopt/internal/store"
)

var (
	configPath     string
	objective      string
	dimension      int
	generations    int
	poolSize       int
	leaders        int
	seed           int64
	printPool      bool
	outDir         string
	dbPath         string
	tracePositions bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single optimization",
	Long: `Runs the leader/follower/walker optimizer on a benchmark objective and
prints the best solution found. Flags override values from --config.`,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML run file")
	runCmd.Flags().StringVar(&objective, "objective", "rastrigin", "Benchmark objective")
	runCmd.Flags().IntVar(&dimension, "dim", 2, "Search space dimension")
	runCmd.Flags().IntVar(&generations, "gens", 500, "Number of generations")
	runCmd.Flags().IntVar(&poolSize, "pool", 21, "Population size")
	runCmd.Flags().IntVar(&leaders, "leaders", 4, "Number of leaders")
	runCmd.Flags().Int64Var(&seed, "seed", 1, "Random seed")
	runCmd.Flags().BoolVar(&printPool, "print-pool", false, "Print the population after every generation")
	runCmd.Flags().StringVar(&outDir, "out-dir", "", "Save a run report and trace under this directory")
	runCmd.Flags().StringVar(&dbPath, "db", "", "Record every agent of every generation in this SQLite file")
	runCmd.Flags().BoolVar(&tracePositions, "trace-positions", false, "Include the best position in trace entries")

	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overrides cfg with the flags the user set explicitly.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("objective") {
		cfg.Objective = objective
	}
	if flags.Changed("dim") {
		cfg.Optimizer.Dimension = dimension
	}
	if flags.Changed("gens") {
		cfg.Optimizer.NGens = generations
	}
	if flags.Changed("pool") {
		cfg.Optimizer.PoolSize = poolSize
	}
	if flags.Changed("leaders") {
		cfg.Optimizer.NLeaders = leaders
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = executeRun(ctx, cmd.OutOrStdout(), cfg, runOutputs{
		printPool:      printPool,
		outDir:         outDir,
		dbPath:         dbPath,
		tracePositions: tracePositions,
	})
	return err
}

// runOutputs selects where a run writes besides the summary line.
type runOutputs struct {
	printPool      bool
	outDir         string
	dbPath         string
	tracePositions bool
}

// executeRun validates cfg, runs the optimizer until completion or until ctx
// is cancelled, and records the outcome in the requested outputs. It returns
// the report that was (or would have been) saved.
func executeRun(ctx context.Context, out io.Writer, cfg *config.Config, outputs runOutputs) (*store.RunReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fn, err := bench.Lookup(cfg.Objective, cfg.Optimizer.Dimension)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	slog.Info("Starting optimization",
		"run_id", runID,
		"objective", fn.Name(),
		"agents", cfg.Optimizer.Total(),
		"generations", cfg.Optimizer.NGens,
		"seed", cfg.Seed,
	)

	opts := []flw.Option{
		flw.WithSeed(cfg.Seed),
		flw.WithObserver(func(flw.Report) error { return ctx.Err() }),
	}
	if outputs.printPool {
		opts = append(opts, flw.WithObserver(func(r flw.Report) error {
			return flw.FormatPool(out, r)
		}))
	}

	var reportStore *store.FSStore
	if outputs.outDir != "" {
		reportStore, err = store.NewFSStore(outputs.outDir)
		if err != nil {
			return nil, err
		}
		tw, err := store.NewTraceWriter(outputs.outDir, runID, false)
		if err != nil {
			return nil, err
		}
		defer tw.Close()
		opts = append(opts, flw.WithObserver(func(r flw.Report) error {
			return tw.Write(store.NewTraceEntry(r, outputs.tracePositions))
		}))
	}

	if outputs.dbPath != "" {
		db, err := store.OpenSQLite(outputs.dbPath)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		st, err := store.NewSQLTrace(db, runID, cfg.Optimizer.Dimension)
		if err != nil {
			return nil, err
		}
		opts = append(opts, flw.WithObserver(st.Observe))
	}

	optimizer, err := flw.New(cfg.Optimizer, flw.ObjectiveFunc(fn.Eval), opts...)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	_, runErr := optimizer.Run()
	elapsed := time.Since(start)

	status := store.StatusCompleted
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		status = store.StatusCancelled
		slog.Warn("Optimization interrupted", "run_id", runID, "generation", optimizer.Generation())
	default:
		status = store.StatusFailed
		slog.Error("Optimization failed", "run_id", runID, "error", runErr)
	}

	best, ok := optimizer.Best()
	if !ok {
		return nil, fmt.Errorf("failed to evaluate any agent: %w", runErr)
	}

	jobConfig := store.JobConfig{Objective: cfg.Objective, Seed: cfg.Seed, Optimizer: cfg.Optimizer}
	report := store.NewRunReport(runID, jobConfig, best, optimizer.Generation(), optimizer.Evaluations(), status)
	report.Elapsed = elapsed
	if runErr != nil {
		report.Error = runErr.Error()
	}

	if reportStore != nil {
		if err := reportStore.SaveReport(runID, report); err != nil {
			return report, fmt.Errorf("failed to save report: %w", err)
		}
		slog.Info("Run report saved", "run_id", runID, "dir", outputs.outDir)
	}

	eps := float64(report.Evaluations) / elapsed.Seconds()
	slog.Info("Optimization complete",
		"run_id", runID,
		"elapsed", elapsed,
		"generations", report.Generations,
		"evaluations", report.Evaluations,
		"best_fitness", best.Fitness,
		"optimum", fn.Optimum(),
		"evals_per_second", fmt.Sprintf("%.0f", eps),
	)

	fmt.Fprintf(out, "best: %v at %v (%d generations, %d evaluations, %.0f evals/sec)\n",
		best.Fitness, best.Position, report.Generations, report.Evaluations, eps)

	if runErr != nil {
		return report, runErr
	}
	return report, nil
}
