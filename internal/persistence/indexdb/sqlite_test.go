package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dshnews.game/internal/persistence/savestore"
	"dshnews.game/internal/sim/locations"
	"dshnews.game/internal/sim/scene"
	"dshnews.game/internal/sim/tuning"
)

func TestSQLiteIndex_TransitionsAndSaves(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index", "dshnews.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()

	_ = idx.WriteTransition(scene.TransitionEntry{Seq: 1, To: "MENU", Category: "MENU"})
	_ = idx.WriteTransition(scene.TransitionEntry{Seq: 2, From: "MENU", To: "NEWSROOM", Category: "LOCATION", Faded: true, StartedAt: 10, EndedAt: 900})
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	_ = idx.RecordSave(savestore.SaveEntry{SaveID: "s1", Location: "NEWSROOM", Participants: 4, Digest: "d1", Bytes: []byte("abc"), SavedAt: base})
	_ = idx.RecordSave(savestore.SaveEntry{SaveID: "s2", Location: "STREET", Participants: 5, Digest: "d2", SavedAt: base.Add(time.Minute)})

	trs, err := idx.RecentTransitions(ctx, 10)
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if len(trs) != 2 || trs[0].Seq != 2 || trs[0].From != "MENU" || !trs[0].Faded || trs[0].EndedMs != 900 {
		t.Fatalf("transitions=%+v", trs)
	}
	saves, err := idx.RecentSaves(ctx, 1)
	if err != nil {
		t.Fatalf("saves: %v", err)
	}
	if len(saves) != 1 || saves[0].SaveID != "s2" || saves[0].Participants != 5 {
		t.Fatalf("saves=%+v", saves)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	idx2, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx2.Close()
	saves, err = idx2.RecentSaves(ctx, 10)
	if err != nil {
		t.Fatalf("saves after reopen: %v", err)
	}
	if len(saves) != 2 || saves[1].Size != 3 {
		t.Fatalf("saves after reopen=%+v", saves)
	}
}

func TestSQLiteIndex_UpsertCatalog(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "i.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()
	cat, err := locations.LoadCatalog("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	ctx := context.Background()
	if err := idx.UpsertCatalog(cat, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	d1, err := idx.CatalogDigest(ctx, "locations")
	if err != nil || d1 == "" {
		t.Fatalf("digest=%q err=%v", d1, err)
	}
	if err := idx.UpsertCatalog(cat, tuning.Defaults()); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	d2, _ := idx.CatalogDigest(ctx, "locations")
	if d1 != d2 {
		t.Fatalf("digest not stable: %s vs %s", d1, d2)
	}
	if d, _ := idx.CatalogDigest(ctx, "missing"); d != "" {
		t.Fatalf("missing catalog digest=%q", d)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTransition}

	_ = s.WriteTransition(scene.TransitionEntry{Seq: 2})
	_ = s.RecordSave(savestore.SaveEntry{SaveID: "x"})
	_ = s.RecordSave(savestore.SaveEntry{SaveID: "y"})

	st := s.Stats()
	if st.DropTransitionTotal != 1 || st.DropSaveTotal != 2 || st.QueueDepth != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteTransition(scene.TransitionEntry{}); err != nil {
		t.Fatalf("nil write: %v", err)
	}
	if err := s.RecordSave(savestore.SaveEntry{}); err != nil {
		t.Fatalf("nil save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
