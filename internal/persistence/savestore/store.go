package savestore

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"time"

	"github.com/google/uuid"

	"dshnews.game/internal/persistence/savedata"
)

// Participant is anything whose state goes into the save record. DataID must
// be unique among registered participants. Participants are compared by
// identity, so implement it on a pointer type.
type Participant interface {
	DataID() string
	ContributeState(r *savedata.Record)
	RestoreState(r *savedata.Record)
}

// SaveEntry describes one completed save. Sinks receive it after the file is
// written.
type SaveEntry struct {
	SaveID       string
	Path         string
	Location     string
	Participants int
	Digest       string
	Bytes        []byte
	Record       *savedata.Record
	SavedAt      time.Time
}

type SaveSink interface {
	RecordSave(e SaveEntry) error
}

type Options struct {
	Logger *log.Logger
	Sinks  []SaveSink
}

// Store owns the live save record and the file behind it. It is not safe for
// concurrent use; call it from the scheduler goroutine.
type Store struct {
	path   string
	log    *log.Logger
	sinks  []SaveSink
	record *savedata.Record

	participants []Participant
}

// Open creates a store for path and reads the file if it is there. A missing
// or unreadable file leaves an empty record; nothing is returned as an error.
func Open(path string, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Store{
		path:   path,
		log:    logger,
		sinks:  append([]SaveSink(nil), opts.Sinks...),
		record: savedata.NewRecord(),
	}
	s.readSavedData()
	return s
}

func (s *Store) readSavedData() {
	if s.path == "" {
		return
	}
	rec, err := savedata.ReadFile(s.path)
	switch {
	case err == nil:
		s.record.ReplaceWith(rec)
		s.log.Printf("save data loaded from %s (scene=%q)", s.path, rec.SceneToSave)
	case errors.Is(err, fs.ErrNotExist):
		s.log.Printf("no save data at %s; starting fresh", s.path)
	default:
		s.log.Printf("save data at %s unreadable, starting fresh: %v", s.path, err)
	}
}

func (s *Store) Path() string { return s.path }

// Record returns the live record. Participants and callers share it.
func (s *Store) Record() *savedata.Record { return s.record }

func (s *Store) AddSink(sink SaveSink) {
	if sink != nil {
		s.sinks = append(s.sinks, sink)
	}
}

// Register adds p once; registering again keeps its original position.
func (s *Store) Register(p Participant) {
	if p == nil || s.indexOf(p) >= 0 {
		return
	}
	s.participants = append(s.participants, p)
}

func (s *Store) Unregister(p Participant) {
	i := s.indexOf(p)
	if i < 0 {
		return
	}
	s.participants = append(s.participants[:i], s.participants[i+1:]...)
}

func (s *Store) Registered(p Participant) bool { return s.indexOf(p) >= 0 }

// Participants returns the registry in registration order.
func (s *Store) Participants() []Participant {
	return append([]Participant(nil), s.participants...)
}

func (s *Store) indexOf(p Participant) int {
	if p == nil {
		return -1
	}
	for i, q := range s.participants {
		if q == p {
			return i
		}
	}
	return -1
}

// Save collects every participant's state into the record and writes the file.
func (s *Store) Save() error {
	// Iterate a copy: a participant may register or unregister while saving.
	for _, p := range s.Participants() {
		p.ContributeState(s.record)
	}
	if s.path == "" {
		return nil
	}
	b, err := savedata.WriteFile(s.path, s.record)
	if err != nil {
		return err
	}

	entry := SaveEntry{
		SaveID:       uuid.NewString(),
		Path:         s.path,
		Location:     s.record.SceneToSave,
		Participants: len(s.participants),
		Digest:       savedata.Digest(s.record),
		Bytes:        b,
		Record:       s.record.Clone(),
		SavedAt:      time.Now().UTC(),
	}
	for _, sink := range s.sinks {
		if err := sink.RecordSave(entry); err != nil {
			s.log.Printf("save sink: %v", err)
		}
	}
	return nil
}

// Load hands the in-memory record to every participant.
func (s *Store) Load() {
	for _, p := range s.Participants() {
		p.RestoreState(s.record)
	}
}

// Reload re-reads the file into the live record without notifying
// participants. It reports whether a record was read.
func (s *Store) Reload() bool {
	if s.path == "" {
		return false
	}
	rec, err := savedata.ReadFile(s.path)
	if err != nil {
		s.log.Printf("reload %s: %v", s.path, err)
		return false
	}
	s.record.ReplaceWith(rec)
	return true
}
