package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/gapwatch/internal/contracts"
)

// maxListed caps how many symbols a summary spells out
const maxListed = 10

// Message is one notification ready to publish
type Message struct {
	Subject string
	Body    string
}

// FormatSummary renders a checkpoint result. The body lists the largest
// qualified symbols first, as ordered by the processor.
func FormatSummary(r *contracts.CheckpointResult) Message {
	subject := fmt.Sprintf("No qualified stocks at %s", r.Label)
	if r.QualifiedCount > 0 {
		subject = fmt.Sprintf("Qualified: %d stocks at %s", r.QualifiedCount, r.Label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Checkpoint %s (%s)\n", r.Label, r.Date)
	fmt.Fprintf(&b, "Qualified: %d of %d\n", r.QualifiedCount, r.TotalCount)
	if r.FailedCount > 0 {
		fmt.Fprintf(&b, "Failed fetches: %d of %d\n", r.FailedCount, r.FetchedCount)
	}
	if r.AllFetchesFailed() {
		b.WriteString("WARNING: every quote fetch failed, verdicts are insufficient_data\n")
	}

	if len(r.Qualified) > 0 {
		b.WriteString("\n")
		for i, q := range r.Qualified {
			if i == maxListed {
				fmt.Fprintf(&b, "(+%d more)\n", len(r.Qualified)-maxListed)
				break
			}
			b.WriteString(FormatLine(q))
			b.WriteString("\n")
		}
	}

	return Message{Subject: subject, Body: b.String()}
}

// FormatLine renders "SYM: +3.0% ($10.30), Vol: 512,000, MCap: $20M"
func FormatLine(q contracts.QualifiedSymbol) string {
	pct := decimal.NewFromFloat(q.PctChange).Round(1)
	sign := ""
	if !pct.IsNegative() {
		sign = "+"
	}

	line := fmt.Sprintf("%s: %s%s%% ($%s), Vol: %s",
		q.Symbol,
		sign, pct.StringFixed(1),
		decimal.NewFromFloat(q.CurrentPrice).StringFixed(2),
		FormatVolume(q.Volume),
	)
	if q.MarketCapMillions.Valid {
		line += ", MCap: " + FormatMarketCap(q.MarketCapMillions.Float64)
	}
	return line
}

// FormatVolume renders 1.2M at or above a million, otherwise grouped digits
func FormatVolume(v float64) string {
	d := decimal.NewFromFloat(v)
	million := decimal.NewFromInt(1_000_000)
	if d.GreaterThanOrEqual(million) {
		return d.Div(million).StringFixed(1) + "M"
	}
	return groupThousands(d.Round(0).String())
}

// FormatMarketCap renders millions as $20M or $1.2B
func FormatMarketCap(millions float64) string {
	d := decimal.NewFromFloat(millions)
	thousand := decimal.NewFromInt(1000)
	if d.GreaterThanOrEqual(thousand) {
		return "$" + d.Div(thousand).StringFixed(1) + "B"
	}
	return "$" + d.StringFixed(0) + "M"
}

// FormatFailure renders a checkpoint-fatal error alert
func FormatFailure(date, label string, cause error) Message {
	return Message{
		Subject: fmt.Sprintf("Checkpoint %s failed", label),
		Body:    fmt.Sprintf("Checkpoint %s (%s) did not complete.\nError: %v\n", label, date, cause),
	}
}

func groupThousands(digits string) string {
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
