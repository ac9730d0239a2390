package dataset

import (
	"fmt"

	"github.com/guregu/null/v6"
)

// Reason codes recorded with every verdict
const (
	ReasonQualified          = "qualified"
	ReasonInsufficientData   = "insufficient_data"
	ReasonVolumeBelowMinimum = "volume_below_minimum"
	ReasonCloseBelowMinimum  = "close_below_minimum"
	ReasonNoGapUp            = "no_gap_up"
	ReasonChangeBelowMinimum = "change_below_minimum"
)

// Verdict is the qualification outcome of one row at one checkpoint
type Verdict struct {
	Qualified bool   `json:"qualified"`
	Reason    string `json:"reason"`
}

// StampedVerdict is a verdict tagged with the checkpoint that produced it
type StampedVerdict struct {
	Label string `json:"label"`
	Verdict
}

// String renders the dashboard form "[08:50] - True"
func (s StampedVerdict) String() string {
	v := "False"
	if s.Qualified {
		v = "True"
	}
	return fmt.Sprintf("[%s] - %s", s.Label, v)
}

// CheckpointData is everything recorded for one row at one checkpoint
type CheckpointData struct {
	CurrentPrice              null.Float `json:"current_price"`
	CurrentVolume             null.Float `json:"current_volume"`
	IntradayMarketCapMillions null.Float `json:"intraday_market_cap_millions"`
	High                      null.Float `json:"high"` // full checkpoints only
	Low                       null.Float `json:"low"`  // full checkpoints only
	Verdict                   *Verdict   `json:"verdict,omitempty"`
}

// Row is one tracked symbol for the trading day
type Row struct {
	Symbol                        string     `json:"symbol"`
	Open                          null.Float `json:"open"`
	Close                         null.Float `json:"close"`
	Volume                        null.Float `json:"volume"`
	AvgVolume                     null.Float `json:"avg_volume"`
	SharesOutstanding             null.Float `json:"shares_outstanding"`
	CurrentPrice                  null.Float `json:"current_price"`
	CurrentPricePctChangeFromOpen null.Float `json:"current_price_pct_change_from_open"`
	IntradayMarketCapMillions     null.Float `json:"intraday_market_cap_millions"`
	TopGainer                     bool       `json:"top_gainer"`

	// Latest is the verdict of the chronologically latest checkpoint run so far
	Latest *StampedVerdict `json:"latest,omitempty"`

	Checkpoints map[string]*CheckpointData `json:"checkpoints"`

	// extra holds cells of columns this version does not model, keyed by header
	extra map[string]string
}

func newRow(symbol string) *Row {
	return &Row{
		Symbol:      symbol,
		Checkpoints: make(map[string]*CheckpointData),
	}
}

// Checkpoint returns the record for label, or nil
func (r *Row) Checkpoint(label string) *CheckpointData {
	return r.Checkpoints[label]
}

// RefreshDerived recomputes the row-level derived fields from current state.
// Inputs that are null make the derived value null, never zero or stale.
func (r *Row) RefreshDerived() {
	r.CurrentPricePctChangeFromOpen = PctChange(r.Open, r.CurrentPrice)
	r.IntradayMarketCapMillions = MarketCapMillions(r.SharesOutstanding, r.CurrentPrice)
}

// Table is the day's dataset: one row per symbol plus the ordered
// checkpoint labels seen so far. Row order and label order are stable.
// ⭐ SSOT: the in-memory dataset model
type Table struct {
	Date string

	order  []string
	rows   map[string]*Row
	labels []string
	full   map[string]bool

	// columns read from storage that this version does not model
	extraColumns []string
}

// NewTable creates a table with one empty row per symbol.
// Duplicate symbols keep their first position.
func NewTable(date string, symbols []string) *Table {
	t := &Table{
		Date: date,
		rows: make(map[string]*Row, len(symbols)),
		full: make(map[string]bool),
	}
	for _, sym := range symbols {
		if _, ok := t.rows[sym]; ok {
			continue
		}
		t.order = append(t.order, sym)
		t.rows[sym] = newRow(sym)
	}
	return t
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.order)
}

// Symbols returns symbols in row order
func (t *Table) Symbols() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Row returns the row for symbol, or nil
func (t *Table) Row(symbol string) *Row {
	return t.rows[symbol]
}

// Rows returns rows in table order
func (t *Table) Rows() []*Row {
	out := make([]*Row, 0, len(t.order))
	for _, sym := range t.order {
		out = append(out, t.rows[sym])
	}
	return out
}

// Labels returns checkpoint labels in the order their columns were added
func (t *Table) Labels() []string {
	out := make([]string, len(t.labels))
	copy(out, t.labels)
	return out
}

// IsFull reports whether label carries high/low columns
func (t *Table) IsFull(label string) bool {
	return t.full[label]
}

// HasLabel reports whether columns for label exist
func (t *Table) HasLabel(label string) bool {
	for _, l := range t.labels {
		if l == label {
			return true
		}
	}
	return false
}

// registerLabel appends label's columns on first use. A label that was
// ever full stays full so columns are never dropped.
func (t *Table) registerLabel(label string, full bool) {
	if !t.HasLabel(label) {
		t.labels = append(t.labels, label)
	}
	if full {
		t.full[label] = true
	}
}

// Stamp records verdict for symbol at label. The row's latest verdict
// moves only forward in time, so re-running an earlier checkpoint does
// not hide a later one.
func (t *Table) Stamp(symbol, label string, v Verdict) {
	row := t.rows[symbol]
	if row == nil {
		return
	}

	cp := row.Checkpoints[label]
	if cp == nil {
		cp = &CheckpointData{}
		row.Checkpoints[label] = cp
	}
	verdict := v
	cp.Verdict = &verdict

	if row.Latest == nil || LabelAtOrAfter(label, row.Latest.Label) {
		row.Latest = &StampedVerdict{Label: label, Verdict: v}
	}
}

// MarkTopGainers flags rows whose symbol is in gainers and returns how many matched
func (t *Table) MarkTopGainers(gainers []string) int {
	n := 0
	for _, sym := range gainers {
		if row := t.rows[sym]; row != nil && !row.TopGainer {
			row.TopGainer = true
			n++
		}
	}
	return n
}
