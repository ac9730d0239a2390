package dataset

import (
	"github.com/guregu/null/v6"

	"github.com/wonny/gapwatch/pkg/logger"
)

// Update carries one symbol's freshly fetched values for a checkpoint
type Update struct {
	Open              null.Float
	Close             null.Float
	Volume            null.Float
	AvgVolume         null.Float
	SharesOutstanding null.Float
	CurrentPrice      null.Float
	High              null.Float
	Low               null.Float
}

// MergeOptions shapes how a checkpoint's updates land in the table
type MergeOptions struct {
	// Full checkpoints also record high/low
	Full bool
	// RefreshReference lets supplied open/close/avg_volume replace known values
	RefreshReference bool
}

// MergeStats reports what a merge touched
type MergeStats struct {
	Merged  int
	Unknown int
}

// MergeCheckpoint writes label's columns for every symbol in updates.
//
// The label's columns are registered even when updates is empty, so the
// column set of the table only grows. Rows without an update keep whatever
// they held for label (null on a first run). Re-running a label overwrites
// its columns in place.
func MergeCheckpoint(t *Table, label string, updates map[string]Update, opts MergeOptions, log *logger.Logger) MergeStats {
	t.registerLabel(label, opts.Full)

	var stats MergeStats
	for sym, u := range updates {
		row := t.rows[sym]
		if row == nil {
			stats.Unknown++
			log.WithFields(map[string]interface{}{
				"symbol":     sym,
				"checkpoint": label,
			}).Warn("Update for symbol not in dataset ignored")
			continue
		}

		mergeRow(row, label, u, opts)
		stats.Merged++
	}
	return stats
}

func mergeRow(row *Row, label string, u Update, opts MergeOptions) {
	// shares outstanding is fill-once for the session
	if !row.SharesOutstanding.Valid && present(u.SharesOutstanding) {
		row.SharesOutstanding = u.SharesOutstanding
	}

	row.Open = fillOrRefresh(row.Open, u.Open, opts.RefreshReference)
	row.Close = fillOrRefresh(row.Close, u.Close, opts.RefreshReference)
	row.AvgVolume = fillOrRefresh(row.AvgVolume, u.AvgVolume, opts.RefreshReference)

	// cumulative volume moves with every successful fetch
	if present(u.Volume) {
		row.Volume = u.Volume
	}

	// the price is this checkpoint's observation, even when it is unknown
	row.CurrentPrice = cleaned(u.CurrentPrice)

	cp := &CheckpointData{
		CurrentPrice:              cleaned(u.CurrentPrice),
		CurrentVolume:             cleaned(u.Volume),
		IntradayMarketCapMillions: MarketCapMillions(row.SharesOutstanding, cleaned(u.CurrentPrice)),
	}
	if opts.Full {
		cp.High = cleaned(u.High)
		cp.Low = cleaned(u.Low)
	}
	if prev := row.Checkpoints[label]; prev != nil {
		cp.Verdict = prev.Verdict
	}
	row.Checkpoints[label] = cp
}

func fillOrRefresh(current, supplied null.Float, refresh bool) null.Float {
	if !present(supplied) {
		return current
	}
	if !current.Valid || refresh {
		return supplied
	}
	return current
}

func cleaned(f null.Float) null.Float {
	if !present(f) {
		return null.Float{}
	}
	return f
}
