package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dshnews.game/internal/persistence/archive"
	"dshnews.game/internal/persistence/savedata"
	"dshnews.game/internal/persistence/savestore"
	"dshnews.game/internal/sim/geom"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func sampleRecord() *savedata.Record {
	r := savedata.NewRecord()
	r.SceneToSave = "STREET"
	r.SetPosition("player", geom.V(4, 1, -2))
	r.SetFloat("progress.influence", 7)
	r.SetBool("street_kiosk", true)
	return r
}

func TestShowAndValidate(t *testing.T) {
	data := t.TempDir()
	path := filepath.Join(data, "SAVE DATA", "data.sav")
	if _, err := savedata.WriteFile(path, sampleRecord()); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := run(t, "--data", data, "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{`location="STREET"`, "player", "progress.influence", "street_kiosk"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "--data", data, "validate")
	if err != nil || !strings.Contains(out, "ok") {
		t.Fatalf("validate: out=%q err=%v", out, err)
	}
}

func TestValidate_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.sav")
	if err := os.WriteFile(path, []byte(`{"version":1,"characterPosDict":[]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := run(t, "validate", path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestHistoryListAndRestore(t *testing.T) {
	data := t.TempDir()
	dir := filepath.Join(data, "SAVE DATA", "history")
	h, err := archive.OpenHistory(dir, 5, nil)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	rec := sampleRecord()
	if err := h.RecordSave(savestore.SaveEntry{
		SaveID:       "0f0e0d0c-aaaa-bbbb-cccc-000000000001",
		Location:     rec.SceneToSave,
		Participants: 3,
		Digest:       savedata.Digest(rec),
		Record:       rec,
		SavedAt:      time.Unix(1700000000, 0),
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	out, err := run(t, "--data", data, "history", "list")
	if err != nil || !strings.Contains(out, "STREET") {
		t.Fatalf("list: out=%q err=%v", out, err)
	}

	if _, err := run(t, "--data", data, "history", "restore", "1"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, err := savedata.ReadFile(filepath.Join(data, "SAVE DATA", "data.sav"))
	if err != nil {
		t.Fatalf("read restored: %v", err)
	}
	if got.SceneToSave != "STREET" {
		t.Fatalf("restored location=%q", got.SceneToSave)
	}
}

func TestLog_UnknownKind(t *testing.T) {
	if _, err := run(t, "--data", t.TempDir(), "log", "ticks"); err == nil {
		t.Fatalf("expected error for unknown log")
	}
}

func TestStateAndSave_AgainstAdminServer(t *testing.T) {
	var saves int
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/v1/state":
			_, _ = rw.Write([]byte(`{"location":"MENU","state":"IDLE"}`))
		case "/admin/v1/save":
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			saves++
			_, _ = rw.Write([]byte(`{"ok":true}`))
		default:
			http.NotFound(rw, r)
		}
	}))
	defer srv.Close()

	out, err := run(t, "state", "--url", srv.URL)
	if err != nil || !strings.Contains(out, `"location":"MENU"`) {
		t.Fatalf("state: out=%q err=%v", out, err)
	}
	if _, err := run(t, "save", "--url", srv.URL); err != nil || saves != 1 {
		t.Fatalf("save: err=%v saves=%d", err, saves)
	}
}
