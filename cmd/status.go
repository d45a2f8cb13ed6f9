package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	cancelJob  bool
	httpClient = &http.Client{Timeout: 10 * time.Second}
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.
With --cancel the job is asked to stop first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	statusCmd.Flags().BoolVar(&cancelJob, "cancel", false, "Cancel the given job")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus mirrors the server's status response.
type jobStatus struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	Best        []float64 `json:"best"`
	BestFitness float64   `json:"bestFitness"`
	Generations int       `json:"generations"`
	Evaluations int       `json:"evaluations"`
	Stale       int       `json:"stale"`
	Elapsed     float64   `json:"elapsed"`
	EPS         float64   `json:"eps"`
	Error       string    `json:"error"`
	Config      struct {
		Objective string `json:"objective"`
		Seed      int64  `json:"seed"`
		Optimizer struct {
			Dimension int `json:"dimension"`
			PoolSize  int `json:"poolSize"`
			NLeaders  int `json:"nLeaders"`
			NGens     int `json:"nGens"`
		} `json:"optimizer"`
	} `json:"config"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		if cancelJob {
			return fmt.Errorf("--cancel needs a job ID")
		}
		// List all jobs
		return listJobs(out, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}

	jobID := args[0]
	if cancelJob {
		if err := requestCancel(out, jobID); err != nil {
			return err
		}
	}
	return getJobStatus(out, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func listJobs(out io.Writer, url string) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Objective: %s (%dD)\n", job.Config.Objective, job.Config.Optimizer.Dimension)
		if job.Generations > 0 {
			fmt.Fprintf(out, "  Progress: %d/%d generations, best %.6g\n", job.Generations, job.Config.Optimizer.NGens, job.BestFitness)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func requestCancel(out io.Writer, jobID string) error {
	url := fmt.Sprintf("%s/api/v1/jobs/%s/cancel", serverURL, jobID)
	resp, err := httpClient.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Fprintf(out, "Cancellation requested for %s\n\n", jobID)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("job not found: %s", jobID)
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}
}

func getJobStatus(out io.Writer, url, jobID string) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	// Display status
	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Objective: %s\n", status.Config.Objective)
	fmt.Fprintf(out, "  Dimension: %d\n", status.Config.Optimizer.Dimension)
	fmt.Fprintf(out, "  Pool: %d agents, %d leaders\n", status.Config.Optimizer.PoolSize, status.Config.Optimizer.NLeaders)
	fmt.Fprintf(out, "  Generations: %d\n", status.Config.Optimizer.NGens)
	fmt.Fprintf(out, "  Seed: %d\n", status.Config.Seed)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Generation: %d\n", status.Generations)
	fmt.Fprintf(out, "  Evaluations: %d\n", status.Evaluations)
	if len(status.Best) > 0 {
		fmt.Fprintf(out, "  Best Fitness: %.6g\n", status.BestFitness)
		fmt.Fprintf(out, "  Best Position: %v\n", status.Best)
		fmt.Fprintf(out, "  Stale Generations: %d\n", status.Stale)
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.EPS > 0 {
		fmt.Fprintf(out, "  Throughput: %.0f evals/sec\n", status.EPS)
	}

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}

	return nil
}
