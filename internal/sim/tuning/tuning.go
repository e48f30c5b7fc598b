package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz      int `yaml:"tick_rate_hz"`
	FadeDurationMs  int `yaml:"fade_duration_ms"`
	LoadLatencyMs   int `yaml:"load_latency_ms"`
	UnloadLatencyMs int `yaml:"unload_latency_ms"`

	// Save-data identifiers of the always-present participants.
	PlayerID   string `yaml:"player_id"`
	ProgressID string `yaml:"progress_id"`

	SaveDir     string `yaml:"save_dir"`
	SaveFile    string `yaml:"save_file"`
	HistoryKeep int    `yaml:"history_keep"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:      30,
		FadeDurationMs:  500,
		LoadLatencyMs:   200,
		UnloadLatencyMs: 100,
		PlayerID:        "player",
		ProgressID:      "progress",
		SaveDir:         "SAVE DATA",
		SaveFile:        "data.sav",
		HistoryKeep:     20,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	d := Defaults()
	if t.TickRateHz == 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.PlayerID == "" {
		t.PlayerID = d.PlayerID
	}
	if t.ProgressID == "" {
		t.ProgressID = d.ProgressID
	}
	if t.SaveDir == "" {
		t.SaveDir = d.SaveDir
	}
	if t.SaveFile == "" {
		t.SaveFile = d.SaveFile
	}
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in (0, 1000]")
	}
	if t.FadeDurationMs < 0 {
		return fmt.Errorf("fade_duration_ms must be >= 0")
	}
	if t.LoadLatencyMs < 0 || t.UnloadLatencyMs < 0 {
		return fmt.Errorf("load/unload latency must be >= 0")
	}
	if t.PlayerID == t.ProgressID {
		return fmt.Errorf("player_id and progress_id must differ")
	}
	if t.HistoryKeep < 0 {
		return fmt.Errorf("history_keep must be >= 0")
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) FadeDuration() time.Duration {
	return time.Duration(t.FadeDurationMs) * time.Millisecond
}

func (t Tuning) LoadLatency() time.Duration {
	return time.Duration(t.LoadLatencyMs) * time.Millisecond
}

func (t Tuning) UnloadLatency() time.Duration {
	return time.Duration(t.UnloadLatencyMs) * time.Millisecond
}
