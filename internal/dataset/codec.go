package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Base columns, always written first and in this order
var baseColumns = []string{
	"symbol",
	"open",
	"close",
	"volume",
	"avg_volume",
	"shares_outstanding",
	"current_price",
	"current_price_pct_change_from_open",
	"intraday_market_cap_millions",
	"top_gainer",
	"qualified",
}

// per-checkpoint column fields, in write order
const (
	fieldPrice     = "current_price"
	fieldVolume    = "current_volume"
	fieldMarketCap = "intraday_market_cap_millions"
	fieldHigh      = "high"
	fieldLow       = "low"
	fieldQualified = "qualified"
	fieldReason    = "qualified_reason"
)

var checkpointColumn = regexp.MustCompile(`^(current_price|current_volume|intraday_market_cap_millions|high|low|qualified|qualified_reason)_(\d{4})$`)

var stampPattern = regexp.MustCompile(`^\[(\d{2}:\d{2})\] - (True|False)$`)

func checkpointFields(full bool) []string {
	if full {
		return []string{fieldPrice, fieldVolume, fieldMarketCap, fieldHigh, fieldLow, fieldQualified, fieldReason}
	}
	return []string{fieldPrice, fieldVolume, fieldMarketCap, fieldQualified, fieldReason}
}

// Header returns the full column list of t, in write order
func (t *Table) Header() []string {
	header := append([]string{}, baseColumns...)
	for _, label := range t.labels {
		suffix := columnSuffix(label)
		for _, f := range checkpointFields(t.full[label]) {
			header = append(header, f+"_"+suffix)
		}
	}
	return append(header, t.extraColumns...)
}

// Encode serializes t as CSV. Identical tables encode to identical bytes.
func Encode(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Header()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for _, row := range t.Rows() {
		if err := w.Write(t.encodeRow(row)); err != nil {
			return nil, fmt.Errorf("write row %s: %w", row.Symbol, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *Table) encodeRow(row *Row) []string {
	latest := ""
	if row.Latest != nil {
		latest = row.Latest.String()
	}

	record := []string{
		row.Symbol,
		FormatFloat(row.Open),
		FormatFloat(row.Close),
		FormatFloat(row.Volume),
		FormatFloat(row.AvgVolume),
		FormatFloat(row.SharesOutstanding),
		FormatFloat(row.CurrentPrice),
		FormatFloat(row.CurrentPricePctChangeFromOpen),
		FormatFloat(row.IntradayMarketCapMillions),
		FormatBool(row.TopGainer),
		latest,
	}

	for _, label := range t.labels {
		cp := row.Checkpoints[label]
		if cp == nil {
			cp = &CheckpointData{}
		}
		for _, f := range checkpointFields(t.full[label]) {
			record = append(record, encodeCheckpointField(cp, f))
		}
	}

	for _, col := range t.extraColumns {
		record = append(record, row.extra[col])
	}
	return record
}

func encodeCheckpointField(cp *CheckpointData, field string) string {
	switch field {
	case fieldPrice:
		return FormatFloat(cp.CurrentPrice)
	case fieldVolume:
		return FormatFloat(cp.CurrentVolume)
	case fieldMarketCap:
		return FormatFloat(cp.IntradayMarketCapMillions)
	case fieldHigh:
		return FormatFloat(cp.High)
	case fieldLow:
		return FormatFloat(cp.Low)
	case fieldQualified:
		if cp.Verdict == nil {
			return ""
		}
		return FormatBool(cp.Verdict.Qualified)
	case fieldReason:
		if cp.Verdict == nil {
			return ""
		}
		return cp.Verdict.Reason
	}
	return ""
}

// column binds one header position to where its cell lands on decode
type column struct {
	base  string
	label string
	field string
	extra string
}

// Decode parses a CSV written by Encode, or by older tooling using the
// same column naming. Columns it does not recognize are carried through
// unchanged to the right of the known ones.
func Decode(date string, data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty dataset file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := NewTable(date, nil)
	cols := make([]column, len(header))
	isBase := make(map[string]bool, len(baseColumns))
	for _, c := range baseColumns {
		isBase[c] = true
	}

	symbolIdx := -1
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case name == "symbol":
			symbolIdx = i
			cols[i] = column{base: name}
		case isBase[name]:
			cols[i] = column{base: name}
		case checkpointColumn.MatchString(name):
			m := checkpointColumn.FindStringSubmatch(name)
			label, ok := labelFromSuffix(m[2])
			if !ok {
				cols[i] = column{extra: name}
				t.extraColumns = append(t.extraColumns, name)
				continue
			}
			t.registerLabel(label, m[1] == fieldHigh || m[1] == fieldLow)
			cols[i] = column{label: label, field: m[1]}
		default:
			cols[i] = column{extra: name}
			t.extraColumns = append(t.extraColumns, name)
		}
	}
	if symbolIdx < 0 {
		return nil, fmt.Errorf("dataset file has no symbol column")
	}

	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if symbolIdx >= len(record) {
			continue
		}

		sym := strings.TrimSpace(record[symbolIdx])
		if sym == "" || t.rows[sym] != nil {
			continue
		}
		row := newRow(sym)
		t.order = append(t.order, sym)
		t.rows[sym] = row

		for i, cell := range record {
			if i >= len(cols) {
				break
			}
			decodeCell(row, cols[i], cell)
		}

		if row.Latest != nil {
			if cp := row.Checkpoints[row.Latest.Label]; cp != nil && cp.Verdict != nil {
				row.Latest.Reason = cp.Verdict.Reason
			}
		}
	}

	return t, nil
}

func decodeCell(row *Row, col column, cell string) {
	switch {
	case col.extra != "":
		if row.extra == nil {
			row.extra = make(map[string]string)
		}
		row.extra[col.extra] = cell
	case col.label != "":
		decodeCheckpointCell(row, col.label, col.field, cell)
	default:
		decodeBaseCell(row, col.base, cell)
	}
}

func decodeBaseCell(row *Row, name, cell string) {
	switch name {
	case "open":
		row.Open = ParseFloat(cell)
	case "close":
		row.Close = ParseFloat(cell)
	case "volume":
		row.Volume = ParseFloat(cell)
	case "avg_volume":
		row.AvgVolume = ParseFloat(cell)
	case "shares_outstanding":
		row.SharesOutstanding = ParseFloat(cell)
	case "current_price":
		row.CurrentPrice = ParseFloat(cell)
	case "current_price_pct_change_from_open":
		row.CurrentPricePctChangeFromOpen = ParseFloat(cell)
	case "intraday_market_cap_millions":
		row.IntradayMarketCapMillions = ParseFloat(cell)
	case "top_gainer":
		row.TopGainer = ParseBool(cell)
	case "qualified":
		if m := stampPattern.FindStringSubmatch(strings.TrimSpace(cell)); m != nil {
			row.Latest = &StampedVerdict{Label: m[1], Verdict: Verdict{Qualified: m[2] == "True"}}
		}
	}
}

func decodeCheckpointCell(row *Row, label, field, cell string) {
	cp := row.Checkpoints[label]
	if cp == nil {
		cp = &CheckpointData{}
		row.Checkpoints[label] = cp
	}

	switch field {
	case fieldPrice:
		cp.CurrentPrice = ParseFloat(cell)
	case fieldVolume:
		cp.CurrentVolume = ParseFloat(cell)
	case fieldMarketCap:
		cp.IntradayMarketCapMillions = ParseFloat(cell)
	case fieldHigh:
		cp.High = ParseFloat(cell)
	case fieldLow:
		cp.Low = ParseFloat(cell)
	case fieldQualified:
		if strings.TrimSpace(cell) == "" {
			return
		}
		if cp.Verdict == nil {
			cp.Verdict = &Verdict{}
		}
		cp.Verdict.Qualified = ParseBool(cell)
	case fieldReason:
		if strings.TrimSpace(cell) == "" {
			return
		}
		if cp.Verdict == nil {
			cp.Verdict = &Verdict{}
		}
		cp.Verdict.Reason = strings.TrimSpace(cell)
	}
}
