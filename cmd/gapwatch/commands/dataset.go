package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/gapwatch/internal/dataset"
)

// datasetCmd represents the dataset command
var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Inspect daily datasets",
}

var datasetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a day's dataset",
	Long: `Loads the day's dataset from storage and prints one line per symbol
with its latest verdict, or the raw CSV with --csv.

Example:
  go run ./cmd/gapwatch dataset show --date 20250310
  go run ./cmd/gapwatch dataset show --qualified
  go run ./cmd/gapwatch dataset show --csv > raw.csv`,
	RunE: showDataset,
}

var (
	datasetDate          string
	datasetCSV           bool
	datasetOnlyQualified bool
)

func init() {
	rootCmd.AddCommand(datasetCmd)
	datasetCmd.AddCommand(datasetShowCmd)

	datasetShowCmd.Flags().StringVar(&datasetDate, "date", "", "trading date YYYYMMDD or YYYY-MM-DD (default today)")
	datasetShowCmd.Flags().BoolVar(&datasetCSV, "csv", false, "write the raw CSV to stdout")
	datasetShowCmd.Flags().BoolVar(&datasetOnlyQualified, "qualified", false, "only rows whose latest verdict qualified")
}

func showDataset(cmd *cobra.Command, args []string) error {
	app, err := bootstrap(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	date := normalizeDate(datasetDate)
	if date == "" {
		date = dataset.DateKey(time.Now().In(app.Schedule.Location()))
	}
	if err := dataset.ValidateDate(date); err != nil {
		return err
	}

	table, err := app.Store.Load(cmd.Context(), date)
	if errors.Is(err, dataset.ErrNotFound) {
		PrintInfo(fmt.Sprintf("No dataset for %s", date))
		return nil
	}
	if err != nil {
		return err
	}

	if datasetCSV {
		data, err := dataset.Encode(table)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	fmt.Println()
	PrintKeyValue("Date", table.Date, 11)
	PrintKeyValue("Rows", fmt.Sprintf("%d", table.Len()), 11)
	PrintKeyValue("Checkpoints", fmt.Sprintf("%v", table.Labels()), 11)
	fmt.Println()

	widths := []int{8, 10, 10, 12, 10, 12, 9, 22}
	PrintTableHeader([]string{"Symbol", "Close", "Price", "Volume", "Chg Open", "MCap (M)", "Gainer", "Latest"}, widths)
	for _, row := range table.Rows() {
		if datasetOnlyQualified && (row.Latest == nil || !row.Latest.Qualified) {
			continue
		}

		latest := "-"
		if row.Latest != nil {
			latest = row.Latest.String()
		}
		PrintTableRow([]string{
			row.Symbol,
			cell(row.Close, 2),
			cell(row.CurrentPrice, 2),
			cell(row.Volume, 0),
			cell(row.CurrentPricePctChangeFromOpen, 2),
			cell(row.IntradayMarketCapMillions, 1),
			yesNo(row.TopGainer),
			latest,
		}, widths)
	}
	return nil
}
