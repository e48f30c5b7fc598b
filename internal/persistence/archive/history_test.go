package archive

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"dshnews.game/internal/persistence/savedata"
	"dshnews.game/internal/persistence/savestore"
	"dshnews.game/internal/sim/geom"
)

func entry(id, loc string, x float64) savestore.SaveEntry {
	rec := savedata.NewRecord()
	rec.SceneToSave = loc
	rec.SetPosition("player", geom.V(x, 0, 0))
	return savestore.SaveEntry{
		SaveID:       id,
		Location:     loc,
		Participants: 3,
		Digest:       savedata.Digest(rec),
		Record:       rec,
		SavedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestHistory_RecordsAndPrunes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")
	h, err := OpenHistory(dir, 2, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i, id := range []string{"aaa", "bbb", "ccc"} {
		if err := h.RecordSave(entry(id, "STREET", float64(i))); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
	metas, err := h.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(metas) != 2 || metas[0].Seq != 2 || metas[1].Seq != 3 || metas[1].SaveID != "ccc" {
		t.Fatalf("metas=%+v", metas)
	}
	if _, err := os.Stat(filepath.Join(dir, "000001_aaa")); !os.IsNotExist(err) {
		t.Fatalf("oldest entry should be pruned: %v", err)
	}

	// Sequence numbers continue across reopen.
	h2, err := OpenHistory(dir, 2, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := h2.RecordSave(entry("ddd", "NEWSROOM", 9)); err != nil {
		t.Fatalf("record: %v", err)
	}
	m, err := h2.Find("ddd")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if m.Seq != 4 || m.Location != "NEWSROOM" {
		t.Fatalf("meta=%+v", m)
	}
}

func TestHistory_FindByPrefixAndSeq(t *testing.T) {
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history"), 0, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = h.RecordSave(entry("abc-1", "STREET", 1))
	_ = h.RecordSave(entry("abd-2", "STREET", 2))

	if _, err := h.Find("ab"); err == nil {
		t.Fatalf("ambiguous prefix should fail")
	}
	if m, err := h.Find("abd"); err != nil || m.Seq != 2 {
		t.Fatalf("find abd: %+v %v", m, err)
	}
	if m, err := h.Find("1"); err != nil || m.SaveID != "abc-1" {
		t.Fatalf("find seq 1: %+v %v", m, err)
	}
	if _, err := h.Find("zzz"); err == nil {
		t.Fatalf("expected no match")
	}
}

func TestHistory_RestoreBacksUpCurrentFile(t *testing.T) {
	root := t.TempDir()
	savePath := filepath.Join(root, "SAVE DATA", "data.sav")
	h, err := OpenHistory(filepath.Join(root, "SAVE DATA", "history"), 5, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store := savestore.Open(savePath, savestore.Options{Sinks: []savestore.SaveSink{h}})
	store.Record().SceneToSave = "NEWSROOM"
	if err := store.Save(); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	want := store.Record().Clone()
	store.Record().SceneToSave = "STREET"
	if err := store.Save(); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	if _, err := h.Restore("1", savePath); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, err := savedata.ReadFile(savePath)
	if err != nil {
		t.Fatalf("read restored: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("restored=%+v want %+v", got, want)
	}
	bak, err := savedata.ReadFile(savePath + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if bak.SceneToSave != "STREET" {
		t.Fatalf("backup scene=%q want STREET", bak.SceneToSave)
	}
}
