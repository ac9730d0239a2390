package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapwatch/internal/checkpoint"
)

func TestResolveRun(t *testing.T) {
	sched := checkpoint.DefaultSchedule()
	// 08:52 in Chicago (CDT, UTC-5)
	now := time.Date(2025, 3, 10, 13, 52, 0, 0, time.UTC)

	tests := []struct {
		name      string
		date      string
		label     string
		wantDate  string
		wantLabel string
		wantErr   bool
	}{
		{"defaults", "", "", "20250310", "08:50", false},
		{"explicit", "20250307", "09:30", "20250307", "09:30", false},
		{"dashed date", "2025-03-07", "09:30", "20250307", "09:30", false},
		{"ad hoc label", "", "08:37", "20250310", "08:37", false},
		{"bad date", "03/10/2025", "08:50", "", "", true},
		{"impossible date", "20250230", "08:50", "", "", true},
		{"bad label", "", "8:50", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, label, err := resolveRun(sched, now, tt.date, tt.label)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDate, date)
			assert.Equal(t, tt.wantLabel, label)
		})
	}
}

func TestResolveRunBeforeFirstCheckpoint(t *testing.T) {
	sched := checkpoint.DefaultSchedule()
	now := time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC) // 08:30 CDT

	_, _, err := resolveRun(sched, now, "", "")
	assert.Error(t, err)
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-03-14", "20250314"},
		{"20250314", "20250314"},
		{"", ""},
		{"2025-3-14", "2025-3-14"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeDate(tt.in), tt.in)
	}
}

func TestRootCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"checkpoint", "universe", "dataset", "scheduler", "api"} {
		assert.True(t, names[want], want)
	}
}
