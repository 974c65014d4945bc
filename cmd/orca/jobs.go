package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/orca-mail/orca/internal/config"
	"github.com/orca-mail/orca/internal/job"
	sdk "github.com/orca-mail/orca/sdk"
)

var (
	jobsListStatus string
	jobsListLimit  int
	jobsWatchEvery time.Duration
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Background job commands",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your background jobs",
	RunE:  runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job_id>",
	Short: "Show job status",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

var jobsPauseCmd = &cobra.Command{
	Use:   "pause <job_id>",
	Short: "Pause a processing job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsPause,
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <job_id>",
	Short: "Resume a paused job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsResume,
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch <job_id>",
	Short: "Poll a job until it completes or fails",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsWatch,
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job statistics from the local store",
	Long:  `Read job counts straight from the service's job store. Requires the service config (-c) and runs against the store file directly, so the service should be stopped or on another store.`,
	RunE:  runJobsStats,
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsListStatus, "status", "", "Filter by status (pending, processing, completed, failed, paused)")
	jobsListCmd.Flags().IntVar(&jobsListLimit, "limit", 50, "Maximum number of jobs to show")
	jobsWatchCmd.Flags().DurationVar(&jobsWatchEvery, "every", sdk.DefaultPollInterval, "Poll interval")

	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd, jobsPauseCmd, jobsResumeCmd, jobsWatchCmd, jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	jobs, err := client.ListJobs(cmd.Context(), sdk.JobStatus(jobsListStatus), jobsListLimit)
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tSTATUS\tPROGRESS\tSENT\tFAILED\tTOTAL\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d%%\t%d\t%d\t%d\t%s\n",
			j.JobID, j.Status, j.Progress, j.SentEmails, j.FailedEmails,
			j.TotalEmails, j.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	j, err := client.GetJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	printJob(j)
	return nil
}

func runJobsPause(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	j, err := client.PauseJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Job %s paused\n", j.JobID)
	return nil
}

func runJobsResume(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	j, err := client.ResumeJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Job %s resumed (status: %s)\n", j.JobID, j.Status)
	return nil
}

func runJobsWatch(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	watch := client.WatchJob(args[0], jobsWatchEvery, func(j *sdk.EmailJob, err error) {
		if err != nil {
			fmt.Printf("poll error: %v\n", err)
			return
		}
		fmt.Printf("%s  %s  %d%%  sent=%d failed=%d total=%d\n",
			time.Now().Format("15:04:05"), j.Status, j.Progress,
			j.SentEmails, j.FailedEmails, j.TotalEmails)
	})
	defer watch.Stop()

	select {
	case <-watch.Done():
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
	return nil
}

func runJobsStats(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := job.NewStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Jobs: %d total\n", stats.Total)
	fmt.Printf("  Pending:    %d\n", stats.Pending)
	fmt.Printf("  Processing: %d\n", stats.Processing)
	fmt.Printf("  Paused:     %d\n", stats.Paused)
	fmt.Printf("  Completed:  %d\n", stats.Completed)
	fmt.Printf("  Failed:     %d\n", stats.Failed)

	return nil
}

func printJob(j *sdk.EmailJob) {
	fmt.Printf("Job: %s\n", j.JobID)
	fmt.Printf("  Status: %s\n", j.Status)
	fmt.Printf("  Progress: %d%% (%d sent, %d failed of %d)\n",
		j.Progress, j.SentEmails, j.FailedEmails, j.TotalEmails)
	fmt.Printf("  Created: %s\n", j.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Updated: %s\n", j.UpdatedAt.Format("2006-01-02 15:04:05"))
	if j.EstimatedCompletionTime != nil {
		fmt.Printf("  Estimated completion: %s\n", j.EstimatedCompletionTime.Format("2006-01-02 15:04:05"))
	}
	if j.Server != nil {
		fmt.Printf("  Server: %s (%s)\n", j.Server.ServerName, j.Server.ServerID)
	}
}
