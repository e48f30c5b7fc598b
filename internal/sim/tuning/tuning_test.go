package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_TuningYAML(t *testing.T) {
	tune, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning.yaml: %v", err)
	}
	if tune.FadeDuration() != 500*time.Millisecond {
		t.Fatalf("fade=%v want 500ms", tune.FadeDuration())
	}
	if tune.SaveDir != "SAVE DATA" || tune.SaveFile != "data.sav" {
		t.Fatalf("save path parts: %q %q", tune.SaveDir, tune.SaveFile)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("fade_duration_ms: 250\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.FadeDurationMs != 250 {
		t.Fatalf("fade_duration_ms=%d want 250", tune.FadeDurationMs)
	}
	if tune.TickInterval() != time.Second/30 {
		t.Fatalf("tick interval=%v", tune.TickInterval())
	}
	if tune.PlayerID != "player" {
		t.Fatalf("player_id default lost: %q", tune.PlayerID)
	}
}

func TestValidate_RejectsCollidingIDs(t *testing.T) {
	tune := Defaults()
	tune.ProgressID = tune.PlayerID
	if err := tune.Validate(); err == nil {
		t.Fatalf("expected error for colliding ids")
	}
}
