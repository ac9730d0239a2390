package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/gapwatch/internal/checkpoint"
	"github.com/wonny/gapwatch/internal/dataset"
	"github.com/wonny/gapwatch/internal/scheduler/jobs"
)

// checkpointCmd represents the checkpoint command
var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Run or inspect checkpoints",
	Long: `Runs a single checkpoint by hand or lists the day's schedule.

Subcommands:
  run   - run one checkpoint now
  list  - list scheduled checkpoints

Example:
  go run ./cmd/gapwatch checkpoint list
  go run ./cmd/gapwatch checkpoint run --label 08:50
  go run ./cmd/gapwatch checkpoint run --label 08:40 --max-symbols 25 --dry-run`,
}

var (
	checkpointRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Run one checkpoint now",
		Long: `Fetches quotes for the day's universe, merges them as the given
checkpoint's columns, evaluates the rule, persists and notifies.

Without --label the latest checkpoint already due today is used.
Exits non-zero when the checkpoint fails (storage unavailable, universe
unavailable, cancelled).`,
		RunE: runCheckpoint,
	}

	checkpointListCmd = &cobra.Command{
		Use:   "list",
		Short: "List scheduled checkpoints",
		RunE:  listCheckpoints,
	}
)

var (
	runDate       string
	runLabel      string
	runMaxSymbols int
	runDryRun     bool
)

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointRunCmd)
	checkpointCmd.AddCommand(checkpointListCmd)

	checkpointRunCmd.Flags().StringVar(&runDate, "date", "", "trading date YYYYMMDD or YYYY-MM-DD (default today in the schedule timezone)")
	checkpointRunCmd.Flags().StringVar(&runLabel, "label", "", "checkpoint label HH:MM (default latest due)")
	checkpointRunCmd.Flags().IntVar(&runMaxSymbols, "max-symbols", 0, "limit the universe (test mode)")
	checkpointRunCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "keep the dataset in memory and log notifications")
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx, appOptions{DryRun: runDryRun, MaxSymbols: runMaxSymbols})
	if err != nil {
		return err
	}
	defer app.Close()

	now := time.Now()
	date, label, err := resolveRun(app.Schedule, now, runDate, runLabel)
	if err != nil {
		return err
	}

	PrintJobHeader(JobMetadata{
		JobType:   "Checkpoint Run",
		Tag:       "Checkpoint",
		Timestamp: now.Format("2006-01-02 15:04:05"),
		Date:      date,
		Label:     label,
	})

	job, err := jobs.NewCheckpointJob(app.Deps, label)
	if err != nil {
		return err
	}

	result, err := job.RunFor(ctx, date)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	PrintCheckpointResult(result)
	if result.AllFetchesFailed() {
		PrintWarning("Every quote fetch failed; verdicts are insufficient_data")
	}
	PrintJobCompletion(result.RunID, result.Duration.Seconds())
	return nil
}

// resolveRun fills in today's date and the latest due checkpoint
func resolveRun(sched *checkpoint.Schedule, now time.Time, date, label string) (string, string, error) {
	date = normalizeDate(date)
	if date == "" {
		date = dataset.DateKey(now.In(sched.Location()))
	}
	if err := dataset.ValidateDate(date); err != nil {
		return "", "", err
	}

	if label == "" {
		due, ok := sched.LatestDue(now)
		if !ok {
			return "", "", fmt.Errorf("no checkpoint due yet at %s; pass --label", now.In(sched.Location()).Format("15:04"))
		}
		label = due
	}
	if err := dataset.ValidateLabel(label); err != nil {
		return "", "", err
	}
	if _, ok := sched.Spec(label); !ok {
		PrintWarning(fmt.Sprintf("%s is not in the schedule; running it ad hoc", label))
	}
	return date, label, nil
}

// normalizeDate accepts YYYY-MM-DD as well as the dataset's YYYYMMDD
func normalizeDate(date string) string {
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return dataset.DateKey(t)
	}
	return date
}

func listCheckpoints(cmd *cobra.Command, args []string) error {
	_, sched, err := loadConfigAndSchedule()
	if err != nil {
		return err
	}

	fmt.Println()
	PrintKeyValue("Timezone", sched.Timezone, 13)
	PrintKeyValue("Initial pull", sched.InitialPull, 13)
	PrintKeyValue("Full from", sched.FullFrom, 13)
	PrintKeyValue("Hash", sched.Hash(), 13)
	fmt.Println()

	widths := []int{8, 18, 6, 9, 22}
	PrintTableHeader([]string{"Label", "Job", "Full", "Refresh", "Cron"}, widths)
	for _, label := range sched.Labels() {
		spec, _ := sched.Spec(label)
		cron, err := checkpoint.CronSpec(label)
		if err != nil {
			return err
		}
		PrintTableRow([]string{
			label,
			jobs.JobName(label),
			yesNo(sched.IsFull(label)),
			yesNo(spec.RefreshReference),
			cron,
		}, widths)
	}

	t := sched.Qualification
	fmt.Println()
	PrintKeyValue("Min volume", fmt.Sprintf("%.0f", t.MinVolume), 13)
	PrintKeyValue("Min close", fmt.Sprintf("%.2f", t.MinClose), 13)
	PrintKeyValue("Min % change", fmt.Sprintf("%.2f", t.MinPctChange), 13)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
