package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"dshnews.game/internal/persistence/savedata"
	"dshnews.game/internal/persistence/savestore"
	"dshnews.game/internal/persistence/snapshot"
)

const snapshotFile = "data.sav.zst"

type Meta struct {
	Seq          uint64 `json:"seq"`
	SaveID       string `json:"save_id"`
	Location     string `json:"location,omitempty"`
	Digest       string `json:"digest"`
	Participants int    `json:"participants"`
	Snapshot     string `json:"snapshot"`
	CreatedAt    string `json:"created_at"`

	Dir string `json:"-"`
}

// History keeps compressed copies of past saves under
// `<dir>/<seq>_<save id>/` and prunes all but the newest keep entries.
type History struct {
	dir  string
	keep int
	log  *log.Logger

	mu   sync.Mutex
	next uint64
}

func OpenHistory(dir string, keep int, logger *log.Logger) (*History, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty history dir")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	h := &History{dir: dir, keep: keep, log: logger, next: 1}
	metas, err := h.List()
	if err != nil {
		return nil, err
	}
	if n := len(metas); n > 0 {
		h.next = metas[n-1].Seq + 1
	}
	return h, nil
}

func (h *History) Dir() string { return h.dir }

// RecordSave archives one completed save.
func (h *History) RecordSave(e savestore.SaveEntry) error {
	if h == nil || e.Record == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	seq := h.next
	h.next++
	entryDir := filepath.Join(h.dir, fmt.Sprintf("%06d_%s", seq, e.SaveID))
	savedAt := e.SavedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")

	snap := snapshot.Snapshot{
		Header: snapshot.Header{
			SaveID:   e.SaveID,
			Seq:      seq,
			Location: e.Location,
			Digest:   e.Digest,
			SavedAt:  savedAt,
		},
		Record: e.Record,
	}
	if err := snapshot.Write(filepath.Join(entryDir, snapshotFile), snap); err != nil {
		return fmt.Errorf("archive save %s: %w", e.SaveID, err)
	}
	meta := Meta{
		Seq:          seq,
		SaveID:       e.SaveID,
		Location:     e.Location,
		Digest:       e.Digest,
		Participants: e.Participants,
		Snapshot:     snapshotFile,
		CreatedAt:    savedAt,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(entryDir, "meta.json"), b, 0o644)
	}
	h.pruneLocked()
	return nil
}

func (h *History) pruneLocked() {
	if h.keep <= 0 {
		return
	}
	metas, err := h.List()
	if err != nil {
		h.log.Printf("archive prune: %v", err)
		return
	}
	for len(metas) > h.keep {
		if err := os.RemoveAll(metas[0].Dir); err != nil {
			h.log.Printf("archive prune %s: %v", metas[0].Dir, err)
			return
		}
		metas = metas[1:]
	}
}

// List returns the archived saves, oldest first. Entries without a readable
// meta.json are skipped.
func (h *History) List() ([]Meta, error) {
	ents, err := os.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Meta
	for _, ent := range ents {
		if !ent.IsDir() {
			continue
		}
		seqStr, _, ok := strings.Cut(ent.Name(), "_")
		if !ok {
			continue
		}
		if _, err := strconv.ParseUint(seqStr, 10, 64); err != nil {
			continue
		}
		dir := filepath.Join(h.dir, ent.Name())
		b, err := os.ReadFile(filepath.Join(dir, "meta.json"))
		if err != nil {
			continue
		}
		var m Meta
		if err := json.Unmarshal(b, &m); err != nil {
			continue
		}
		m.Dir = dir
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Find looks an entry up by sequence number or save id prefix.
func (h *History) Find(ref string) (Meta, error) {
	metas, err := h.List()
	if err != nil {
		return Meta{}, err
	}
	if seq, err := strconv.ParseUint(ref, 10, 64); err == nil {
		for _, m := range metas {
			if m.Seq == seq {
				return m, nil
			}
		}
	}
	var found []Meta
	for _, m := range metas {
		if ref != "" && strings.HasPrefix(m.SaveID, ref) {
			found = append(found, m)
		}
	}
	switch len(found) {
	case 0:
		return Meta{}, fmt.Errorf("no archived save matches %q", ref)
	case 1:
		return found[0], nil
	default:
		return Meta{}, fmt.Errorf("%q matches %d archived saves", ref, len(found))
	}
}

func (h *History) ReadRecord(m Meta) (*savedata.Record, error) {
	snap, err := snapshot.Read(filepath.Join(m.Dir, m.Snapshot))
	if err != nil {
		return nil, err
	}
	return snap.Record, nil
}

// Restore writes the archived record over savePath. The file it replaces is
// kept next to it as `<name>.bak`.
func (h *History) Restore(ref, savePath string) (Meta, error) {
	m, err := h.Find(ref)
	if err != nil {
		return Meta{}, err
	}
	rec, err := h.ReadRecord(m)
	if err != nil {
		return Meta{}, err
	}
	if _, err := os.Stat(savePath); err == nil {
		if err := copyFile(savePath, savePath+".bak"); err != nil {
			return Meta{}, fmt.Errorf("backup %s: %w", savePath, err)
		}
	}
	if _, err := savedata.WriteFile(savePath, rec); err != nil {
		return Meta{}, err
	}
	return m, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
