package dataset

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var labelPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// ValidateLabel checks that label is a wall-clock "HH:MM" checkpoint label
func ValidateLabel(label string) error {
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("invalid checkpoint label %q: want HH:MM", label)
	}
	return nil
}

// columnSuffix turns "08:50" into "0850"
func columnSuffix(label string) string {
	return strings.Replace(label, ":", "", 1)
}

// labelFromSuffix turns "0850" back into "08:50"
func labelFromSuffix(suffix string) (string, bool) {
	if len(suffix) != 4 {
		return "", false
	}
	label := suffix[:2] + ":" + suffix[2:]
	return label, labelPattern.MatchString(label)
}

// LabelAtOrAfter reports whether label a is the same as or later than b.
// Zero-padded HH:MM labels order lexically.
func LabelAtOrAfter(a, b string) bool {
	return a >= b
}

// DateKey formats t as the YYYYMMDD dataset date
func DateKey(t time.Time) string {
	return t.Format("20060102")
}

// ValidateDate checks a YYYYMMDD dataset date
func ValidateDate(date string) error {
	if _, err := time.Parse("20060102", date); err != nil {
		return fmt.Errorf("invalid dataset date %q: want YYYYMMDD", date)
	}
	return nil
}

// Key is the durable storage key of a day's dataset
func Key(date string) string {
	return fmt.Sprintf("stock_data/%s/raw_data_%s.csv", date, date)
}
