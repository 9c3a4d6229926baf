package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/tuisplit/internal/config"
	"github.com/verte-zerg/tuisplit/internal/model"
)

func TestDefaultConfigTemplateDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.Timer.TickMs != nil || cfg.Server.Enabled != nil {
		t.Fatalf("template values should be commented out: %+v", cfg)
	}
}

func TestApplyConfigRespectsChangedFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	var tick, debounce int
	cmd.Flags().IntVar(&tick, "tick-ms", defaultTickMs, "")
	cmd.Flags().IntVar(&debounce, "debounce-ms", defaultDebounceMs, "")
	if err := cmd.Flags().Set("tick-ms", "20"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	fromFile := 75
	applyIntConfig(cmd, "tick-ms", &tick, &fromFile)
	applyIntConfig(cmd, "debounce-ms", &debounce, &fromFile)
	if tick != 20 {
		t.Fatalf("explicit flag should win, got %d", tick)
	}
	if debounce != 75 {
		t.Fatalf("config should fill unset flag, got %d", debounce)
	}
}

func TestValidateTimerFlags(t *testing.T) {
	defer func(tick int) { timerTickMs = tick }(timerTickMs)
	timerTickMs = 0
	if err := validateTimerFlags(); err == nil || !strings.Contains(err.Error(), "--tick-ms") {
		t.Fatalf("expected tick-ms error, got %v", err)
	}
	timerTickMs = defaultTickMs
	timerDebounceMs = 0
	timerSaveRetries = 0
	if err := validateTimerFlags(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDatasetSummary(t *testing.T) {
	ds := model.Dataset{
		Groups: []model.BackupGroup{{ID: 1}},
		Runs:   []model.BackupRun{{ID: 1, GroupID: 1}, {ID: 2, GroupID: 1}},
		RunTimes: []model.BackupRunTime{
			{RunID: 1, GroupID: 1, SplitIndex: 0, Time: 60_000},
			{RunID: 1, GroupID: 1, SplitIndex: 1, Time: 30 * 60_000},
			{RunID: 2, GroupID: 1, SplitIndex: 0, Time: 30 * 60_000},
		},
	}
	if got := recordedSpan(ds).Minutes(); got != 60 {
		t.Fatalf("expected 60 minutes, got %v", got)
	}
	if got := datasetSummary(ds); !strings.HasPrefix(got, "1 groups, 2 runs, ") {
		t.Fatalf("unexpected summary %q", got)
	}
}
