package checkpoint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wonny/gapwatch/internal/dataset"
	"github.com/wonny/gapwatch/internal/qualification"
)

// Spec is one scheduled checkpoint
type Spec struct {
	Label string `yaml:"label" json:"label"`
	// RefreshReference lets this checkpoint replace open/close/avg_volume
	RefreshReference bool `yaml:"refresh_reference" json:"refresh_reference"`
}

// Schedule is the trading day's checkpoint plan.
// ⭐ SSOT: checkpoint times and thresholds live in the schedule file
type Schedule struct {
	Timezone      string                   `yaml:"timezone" json:"timezone"`
	InitialPull   string                   `yaml:"initial_pull" json:"initial_pull"`
	FullFrom      string                   `yaml:"full_from" json:"full_from"`
	Checkpoints   []Spec                   `yaml:"checkpoints" json:"checkpoints"`
	Qualification qualification.Thresholds `yaml:"qualification" json:"qualification"`

	loc *time.Location
}

// DefaultSchedule is used when no schedule file exists
func DefaultSchedule() *Schedule {
	s := &Schedule{
		Timezone:    "America/Chicago",
		InitialPull: "08:35",
		FullFrom:    "08:50",
		Checkpoints: []Spec{
			{Label: "08:40"},
			{Label: "08:45"},
			{Label: "08:50"},
			{Label: "08:55"},
			{Label: "09:00"},
			{Label: "09:15"},
			{Label: "09:30"},
		},
		Qualification: qualification.DefaultThresholds(),
	}
	// the defaults are known-good
	_ = s.Validate()
	return s
}

// LoadSchedule reads a schedule file. Unknown keys are an error so a typo
// cannot silently drop a checkpoint.
func LoadSchedule(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule %s: %w", path, err)
	}
	return ParseSchedule(data)
}

// LoadScheduleOrDefault falls back to DefaultSchedule when path does not exist
func LoadScheduleOrDefault(path string) (*Schedule, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultSchedule(), nil
	}
	return LoadSchedule(path)
}

// ParseSchedule decodes and validates schedule YAML
func ParseSchedule(data []byte) (*Schedule, error) {
	var s Schedule
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ValidationError names the offending schedule field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks labels, ordering and thresholds, and resolves the timezone
func (s *Schedule) Validate() error {
	if s.Timezone == "" {
		return ValidationError{"timezone", "required"}
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return ValidationError{"timezone", err.Error()}
	}

	if len(s.Checkpoints) == 0 {
		return ValidationError{"checkpoints", "at least one checkpoint required"}
	}
	for i, c := range s.Checkpoints {
		field := fmt.Sprintf("checkpoints[%d].label", i)
		if err := dataset.ValidateLabel(c.Label); err != nil {
			return ValidationError{field, err.Error()}
		}
		if i > 0 && c.Label <= s.Checkpoints[i-1].Label {
			return ValidationError{field, "labels must be unique and ascending"}
		}
	}

	if s.FullFrom != "" {
		if err := dataset.ValidateLabel(s.FullFrom); err != nil {
			return ValidationError{"full_from", err.Error()}
		}
	}
	if s.InitialPull != "" {
		if err := dataset.ValidateLabel(s.InitialPull); err != nil {
			return ValidationError{"initial_pull", err.Error()}
		}
		if s.InitialPull >= s.Checkpoints[0].Label {
			return ValidationError{"initial_pull", "must be before the first checkpoint"}
		}
	}

	q := s.Qualification
	if q.MinVolume < 0 {
		return ValidationError{"qualification.min_volume", "must be >= 0"}
	}
	if q.MinClose <= 0 {
		return ValidationError{"qualification.min_close", "must be > 0"}
	}
	if q.MinPctChange < 0 {
		return ValidationError{"qualification.min_pct_change", "must be >= 0"}
	}

	s.loc = loc
	return nil
}

// Location is the schedule's timezone
func (s *Schedule) Location() *time.Location {
	if s.loc == nil {
		return time.UTC
	}
	return s.loc
}

// Labels lists checkpoint labels in run order
func (s *Schedule) Labels() []string {
	out := make([]string, len(s.Checkpoints))
	for i, c := range s.Checkpoints {
		out[i] = c.Label
	}
	return out
}

// Spec returns the checkpoint with label
func (s *Schedule) Spec(label string) (Spec, bool) {
	for _, c := range s.Checkpoints {
		if c.Label == label {
			return c, true
		}
	}
	return Spec{}, false
}

// IsFull reports whether label records high/low
func (s *Schedule) IsFull(label string) bool {
	return s.FullFrom != "" && dataset.LabelAtOrAfter(label, s.FullFrom)
}

// MergeOptions returns how label's updates merge into the table
func (s *Schedule) MergeOptions(label string) dataset.MergeOptions {
	spec, _ := s.Spec(label)
	return dataset.MergeOptions{
		Full:             s.IsFull(label),
		RefreshReference: spec.RefreshReference,
	}
}

// LatestDue returns the last checkpoint at or before now, in the schedule's timezone
func (s *Schedule) LatestDue(now time.Time) (string, bool) {
	clock := now.In(s.Location()).Format("15:04")
	label, ok := "", false
	for _, c := range s.Checkpoints {
		if dataset.LabelAtOrAfter(clock, c.Label) {
			label, ok = c.Label, true
		}
	}
	return label, ok
}

// CronSpec turns a label into a weekday cron expression with a seconds field
func CronSpec(label string) (string, error) {
	if err := dataset.ValidateLabel(label); err != nil {
		return "", err
	}
	return fmt.Sprintf("0 %s %s * * MON-FRI", label[3:5], label[0:2]), nil
}

// Hash fingerprints the schedule for run logs
func (s *Schedule) Hash() string {
	b, _ := json.Marshal(s)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:12]
}
