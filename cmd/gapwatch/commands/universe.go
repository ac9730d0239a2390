package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/gapwatch/internal/dataset"
)

// universeCmd represents the universe command
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "Symbol universe",
}

var universeLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Resolve and snapshot the day's universe",
	Long: `Resolves the day's symbol universe (cache, day snapshot, then sources)
and prints it. The first resolution of a day is snapshotted, so later
checkpoints see the same symbol set.

Example:
  go run ./cmd/gapwatch universe load
  go run ./cmd/gapwatch universe load --date 20250310 --symbols`,
	RunE: loadUniverse,
}

var (
	universeDate        string
	universeShowSymbols bool
)

func init() {
	rootCmd.AddCommand(universeCmd)
	universeCmd.AddCommand(universeLoadCmd)

	universeLoadCmd.Flags().StringVar(&universeDate, "date", "", "trading date YYYYMMDD or YYYY-MM-DD (default today)")
	universeLoadCmd.Flags().BoolVar(&universeShowSymbols, "symbols", false, "print every symbol")
}

func loadUniverse(cmd *cobra.Command, args []string) error {
	app, err := bootstrap(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	date := normalizeDate(universeDate)
	if date == "" {
		date = dataset.DateKey(time.Now().In(app.Schedule.Location()))
	}

	start := time.Now()
	u, err := app.Universe.Load(cmd.Context(), date)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	fmt.Println()
	PrintKeyValue("Date", u.Date, 11)
	PrintKeyValue("Source", u.Source, 11)
	PrintKeyValue("Symbols", fmt.Sprintf("%d", len(u.Symbols)), 11)
	PrintKeyValue("Top gainers", fmt.Sprintf("%d", len(u.TopGainers)), 11)
	PrintKeyValue("Took", time.Since(start).Round(time.Millisecond).String(), 11)

	if len(u.TopGainers) > 0 {
		fmt.Println()
		fmt.Printf("Top gainers: %s\n", strings.Join(u.TopGainers, ", "))
	}
	if universeShowSymbols {
		fmt.Println()
		fmt.Println(strings.Join(u.Symbols, " "))
	}
	return nil
}
