package commands

import (
	"fmt"
	"strings"

	"github.com/guregu/null/v6"

	"github.com/wonny/gapwatch/internal/contracts"
	"github.com/wonny/gapwatch/internal/notify"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// every command prints through these so output looks the same
// ═══════════════════════════════════════════════════════════

// JobMetadata holds job execution metadata
type JobMetadata struct {
	RunID     string
	JobType   string
	Tag       string
	Timestamp string
	Date      string
	Label     string // Optional
}

// PrintJobHeader prints a formatted job header
func PrintJobHeader(meta JobMetadata) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", meta.JobType)
	PrintSeparator()
	fmt.Printf("  Date      : %s\n", meta.Date)

	if meta.Label != "" {
		fmt.Printf("  Checkpoint: %s\n", meta.Label)
	}

	PrintSeparator()
	fmt.Printf("[%s] Manual run triggered at %s\n", meta.Tag, meta.Timestamp)
}

// PrintJobCompletion prints job completion message
func PrintJobCompletion(runID string, duration float64) {
	fmt.Println()
	fmt.Printf("✅ Run %s completed in %.2fs\n", runID, duration)
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// PrintCheckpointResult prints the qualified list the way notifications render it
func PrintCheckpointResult(r *contracts.CheckpointResult) {
	msg := notify.FormatSummary(r)

	fmt.Println()
	fmt.Println(msg.Subject)
	PrintSeparator()
	fmt.Print(msg.Body)
}

// cell renders a nullable number for table output
func cell(f null.Float, decimals int) string {
	if !f.Valid {
		return "-"
	}
	return fmt.Sprintf("%.*f", decimals, f.Float64)
}
