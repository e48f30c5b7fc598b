package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"dshnews.game/internal/persistence/savestore"
	"dshnews.game/internal/sim/scene"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// `<prefix>-<yyyy-mm-dd-hh>.jsonl.zst` under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Dir() string { return w.baseDir }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Reopening an hour appends a new zstd frame; readers decode frames in sequence.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 32*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Files lists the log files written under dir, oldest first.
func Files(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// ReadLines decodes every JSON line of a closed log file.
func ReadLines(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []json.RawMessage
	br := bufio.NewReader(dec)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 1 {
			out = append(out, json.RawMessage(append([]byte(nil), line[:len(line)-1]...)))
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

// TransitionLogger writes one entry per completed location transition.
type TransitionLogger struct{ w *JSONLZstdWriter }

func NewTransitionLogger(logDir string) *TransitionLogger {
	return &TransitionLogger{w: NewJSONLZstdWriter(filepath.Join(logDir, "transitions"), "transitions")}
}

func (l *TransitionLogger) WriteTransition(e scene.TransitionEntry) error { return l.w.Write(e) }
func (l *TransitionLogger) Close() error                                  { return l.w.Close() }

type SaveLogEntry struct {
	SaveID       string `json:"save_id"`
	Path         string `json:"path"`
	Location     string `json:"location,omitempty"`
	Participants int    `json:"participants"`
	Digest       string `json:"digest"`
	Size         int    `json:"size"`
	SavedAt      string `json:"saved_at"`
}

// SaveLogger writes one entry per save.
type SaveLogger struct{ w *JSONLZstdWriter }

func NewSaveLogger(logDir string) *SaveLogger {
	return &SaveLogger{w: NewJSONLZstdWriter(filepath.Join(logDir, "saves"), "saves")}
}

func (l *SaveLogger) RecordSave(e savestore.SaveEntry) error {
	return l.w.Write(SaveLogEntry{
		SaveID:       e.SaveID,
		Path:         e.Path,
		Location:     e.Location,
		Participants: e.Participants,
		Digest:       e.Digest,
		Size:         len(e.Bytes),
		SavedAt:      e.SavedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (l *SaveLogger) Close() error { return l.w.Close() }
