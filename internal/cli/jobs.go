package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/timeport-io/timeport/internal/client"
	"github.com/timeport-io/timeport/internal/models"
)

var jobsStatus string

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect import jobs",
	Long: `List all import jobs or inspect a specific job by ID.

Examples:
  timeport jobs                 # List all jobs
  timeport jobs --status error  # List failed jobs
  timeport jobs abc123          # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued or running import job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (queued, running, done, error, canceled)")
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(cancelCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := apiClient.ListJobs(ctx, client.ListJobsOptions{
		Status: models.JobStatus(jobsStatus),
	})
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-10s %-14s %-8s %s\n", "ID", "STATUS", "PROGRESS", "ERRORS", "STARTED")
	fmt.Println("------------------------------------------------------------------------")

	for _, job := range jobs {
		progress := ""
		if job.TotalEntities > 0 {
			progress = fmt.Sprintf("%d/%d", job.ProcessedEntities, job.TotalEntities)
		}
		started := job.StartTime.Local().Format("15:04:05")
		fmt.Printf("%-10s %-10s %-14s %-8d %s\n",
			job.JobID(), job.Status, progress, len(job.EntitiesError), started)
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", id)
	}

	fmt.Printf("Job: %s\n", job.JobID())
	fmt.Printf("  Status: %s\n", job.Status)
	if job.TotalEntities > 0 {
		fmt.Printf("  Progress: %d/%d rows\n", job.ProcessedEntities, job.TotalEntities)
	}
	fmt.Printf("  Started: %s\n", job.StartTime.Format(time.RFC3339))
	if job.EndTime != nil {
		fmt.Printf("  Ended: %s\n", job.EndTime.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", job.EndTime.Sub(job.StartTime).Round(time.Second))
	}
	if job.StatusMessage != "" {
		fmt.Printf("  Message: %s\n", job.StatusMessage)
	}

	if len(job.EntitiesError) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(job.EntitiesError))
		keys := make([]string, 0, len(job.EntitiesError))
		for k := range job.EntitiesError {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, job.EntitiesError[k])
		}
	}

	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	job, err := apiClient.CancelJob(ctx, args[0])
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}

	switch {
	case job.Status == models.JobCanceled:
		fmt.Printf("Job %s canceled\n", job.JobID())
	case job.Status.Terminal():
		fmt.Printf("Job %s already finished with status %s\n", job.JobID(), job.Status)
	default:
		fmt.Printf("Cancellation requested for job %s\n", job.JobID())
	}
	return nil
}
