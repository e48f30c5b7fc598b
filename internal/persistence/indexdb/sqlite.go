package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"dshnews.game/internal/persistence/savestore"
	"dshnews.game/internal/sim/locations"
	"dshnews.game/internal/sim/scene"
	"dshnews.game/internal/sim/tuning"
)

// SQLiteIndex is a queryable read-model of transitions and saves. Writes are
// queued to a single writer goroutine and never block the game loop.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTransition atomic.Uint64
	dropSave       atomic.Uint64
}

type reqKind int

const (
	reqTransition reqKind = iota + 1
	reqSave
	reqFlush
)

type req struct {
	kind reqKind

	transition scene.TransitionEntry
	save       saveRow
	flushed    chan struct{}
}

type saveRow struct {
	SaveID       string
	Path         string
	Location     string
	Participants int
	Digest       string
	Size         int
	SavedAt      string
}

type TransitionRow struct {
	Seq       uint64
	From      string
	To        string
	Category  string
	Faded     bool
	StartedMs int64
	EndedMs   int64
	RawJSON   string
}

type SaveRow struct {
	SaveID       string
	Location     string
	Participants int
	Digest       string
	Size         int
	SavedAt      string
}

type Stats struct {
	QueueDepth          int
	DropTransitionTotal uint64
	DropSaveTotal       uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seq INTEGER NOT NULL,
			from_location TEXT NOT NULL,
			to_location TEXT NOT NULL,
			category TEXT NOT NULL,
			faded INTEGER NOT NULL,
			started_ms INTEGER NOT NULL,
			ended_ms INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_to ON transitions(to_location, id);`,
		`CREATE TABLE IF NOT EXISTS saves (
			save_id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			location TEXT NOT NULL,
			participants INTEGER NOT NULL,
			digest TEXT NOT NULL,
			size INTEGER NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saves_saved_at ON saves(saved_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(s.ch),
		DropTransitionTotal: s.dropTransition.Load(),
		DropSaveTotal:       s.dropSave.Load(),
	}
}

func (s *SQLiteIndex) WriteTransition(e scene.TransitionEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTransition, transition: e}:
	default:
		// JSONL logs remain the source of truth.
		s.dropTransition.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSave(e savestore.SaveEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	r := saveRow{
		SaveID:       e.SaveID,
		Path:         e.Path,
		Location:     e.Location,
		Participants: e.Participants,
		Digest:       e.Digest,
		Size:         len(e.Bytes),
		SavedAt:      e.SavedAt.UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSave, save: r}:
	default:
		s.dropSave.Add(1)
	}
	return nil
}

// Flush waits until every queued write is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, flushed: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertCatalog stores the location catalog and tuning in effect, with
// digests, so the index says which configuration produced its rows.
func (s *SQLiteIndex) UpsertCatalog(cat *locations.Catalog, tune tuning.Tuning) error {
	if s == nil || cat == nil {
		return nil
	}
	// The writer goroutine may hold the only connection inside a transaction.
	if err := s.Flush(context.Background()); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name string
		json []byte
	}
	var rows []kv
	{
		type locRow struct {
			ID         string   `json:"id"`
			Category   string   `json:"category"`
			Content    string   `json:"content"`
			Teleports  []string `json:"teleports,omitempty"`
			Savepoints []string `json:"savepoints,omitempty"`
			Doors      []string `json:"doors,omitempty"`
		}
		var locs []locRow
		for _, id := range cat.IDs() {
			l := cat.Get(id)
			r := locRow{ID: l.ID, Category: string(l.Category), Content: l.Content}
			for _, tp := range cat.TeleportsIn(id) {
				r.Teleports = append(r.Teleports, tp.ID)
			}
			for _, sp := range cat.SavepointsIn(id) {
				r.Savepoints = append(r.Savepoints, sp.ID)
			}
			for _, d := range cat.DoorsIn(id) {
				r.Doors = append(r.Doors, d.ID)
			}
			locs = append(locs, r)
		}
		b, _ := json.Marshal(locs)
		rows = append(rows, kv{name: "locations", json: b})
	}
	{
		b, _ := json.Marshal(tune)
		rows = append(rows, kv{name: "tuning", json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		sum := sha256.Sum256(r.json)
		if _, err := stmt.Exec(r.name, hex.EncodeToString(sum[:]), string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	if err := s.Flush(ctx); err != nil {
		return "", err
	}
	var digest string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name = ?`, name).Scan(&digest)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return digest, err
}

// RecentTransitions returns up to limit transitions, newest first.
func (s *SQLiteIndex) RecentTransitions(ctx context.Context, limit int) ([]TransitionRow, error) {
	if limit <= 0 {
		limit = 20
	}
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT seq,from_location,to_location,category,faded,started_ms,ended_ms,raw_json
		FROM transitions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TransitionRow
	for rows.Next() {
		var r TransitionRow
		var faded int
		if err := rows.Scan(&r.Seq, &r.From, &r.To, &r.Category, &faded, &r.StartedMs, &r.EndedMs, &r.RawJSON); err != nil {
			return nil, err
		}
		r.Faded = faded != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentSaves returns up to limit saves, newest first.
func (s *SQLiteIndex) RecentSaves(ctx context.Context, limit int) ([]SaveRow, error) {
	if limit <= 0 {
		limit = 20
	}
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT save_id,location,participants,digest,size,saved_at
		FROM saves ORDER BY saved_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SaveRow
	for rows.Next() {
		var r SaveRow
		if err := rows.Scan(&r.SaveID, &r.Location, &r.Participants, &r.Digest, &r.Size, &r.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTransition, _ := s.db.Prepare(`INSERT INTO transitions(seq,from_location,to_location,category,faded,started_ms,ended_ms,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertSave, _ := s.db.Prepare(`INSERT OR REPLACE INTO saves(save_id,path,location,participants,digest,size,saved_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertTransition != nil {
			_ = insertTransition.Close()
		}
		if insertSave != nil {
			_ = insertSave.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 200
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.flushed)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTransition:
			e := r.transition
			raw, _ := json.Marshal(e)
			faded := 0
			if e.Faded {
				faded = 1
			}
			if insertTransition != nil {
				if _, err := tx.Stmt(insertTransition).Exec(
					int64(e.Seq),
					e.From,
					e.To,
					e.Category,
					faded,
					e.StartedAt,
					e.EndedAt,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSave:
			sv := r.save
			if insertSave != nil {
				if _, err := tx.Stmt(insertSave).Exec(
					sv.SaveID,
					sv.Path,
					sv.Location,
					sv.Participants,
					sv.Digest,
					sv.Size,
					sv.SavedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
