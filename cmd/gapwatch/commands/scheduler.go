package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Scheduler management",
	Long: `Starts the scheduler or manages its jobs.

Subcommands:
  start   - start the scheduler daemon
  list    - list registered jobs
  run     - run one job now
  status  - job statistics of this process

Example:
  go run ./cmd/gapwatch scheduler start
  go run ./cmd/gapwatch scheduler list
  go run ./cmd/gapwatch scheduler run checkpoint_0850`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Starts the scheduler and schedules every registered job.

Registered jobs:
- initial_pull: weekdays at the schedule's initial_pull time
- checkpoint_HHMM: weekdays at every checkpoint label
- pending_cleanup: every 10 minutes (retry unpersisted datasets)

Jobs never overlap. Stop with Ctrl+C.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job now and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show job statistics",
		RunE:  showStatus,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== gapwatch Scheduler ===")

	app, err := bootstrap(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := app.NewScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	app, err := bootstrap(cmd.Context(), appOptions{DryRun: true})
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := app.NewScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.GetJobStats()

	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %-18s %s\n", jobName, stats[jobName].Schedule)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := app.NewScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	if err := sched.RunJobSync(ctx, jobName); err != nil {
		PrintError(err.Error())
		return fmt.Errorf("run job: %w", err)
	}

	PrintSuccess(fmt.Sprintf("Job %s completed", jobName))
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	app, err := bootstrap(cmd.Context(), appOptions{DryRun: true})
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := app.NewScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.GetJobStats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Job Statistics:")
	fmt.Println()

	for _, jobName := range names {
		stat := stats[jobName]
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
		fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
		fmt.Printf("   Failures: %d\n", stat.FailureCount)
		if stat.ConsecutiveFailures > 0 {
			fmt.Printf("   ⚠️  Failing for the last %d runs\n", stat.ConsecutiveFailures)
		}
		if stat.LastTradingDate != "" {
			fmt.Printf("   Trading Date: %s\n", stat.LastTradingDate)
		}

		if stat.NextRun != nil {
			fmt.Printf("   Next Run: %s\n", stat.NextRun.Format("2006-01-02 15:04:05 MST"))
		}

		if stat.LastRun != nil {
			fmt.Printf("   Last Run: %s\n", stat.LastRun.Format("2006-01-02 15:04:05"))
		}

		if stat.LastSuccess != nil {
			fmt.Printf("   Last Success: %s\n", stat.LastSuccess.Format("2006-01-02 15:04:05"))
		}

		if stat.LastFailure != nil {
			fmt.Printf("   Last Failure: %s\n", stat.LastFailure.Format("2006-01-02 15:04:05"))
		}

		fmt.Println()
	}

	return nil
}
