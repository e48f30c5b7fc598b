// Package stage holds headless stand-ins for the engine pieces the scene
// coordinator drives: content loading, the fade screen and the player body.
package stage

import (
	"io"
	"log"
	"sort"
	"time"

	"dshnews.game/internal/sim/scheduler"
)

// Loader simulates asynchronous content loading on a scheduler. Each load or
// unload completes after a fixed latency of scheduler time.
type Loader struct {
	sched         *scheduler.Scheduler
	loadLatency   time.Duration
	unloadLatency time.Duration
	log           *log.Logger

	resident map[string]bool
	stalled  map[string]bool
	pending  map[string]*scheduler.Handle

	loads   uint64
	unloads uint64
}

func NewLoader(s *scheduler.Scheduler, loadLatency, unloadLatency time.Duration, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Loader{
		sched:         s,
		loadLatency:   loadLatency,
		unloadLatency: unloadLatency,
		log:           logger,
		resident:      map[string]bool{},
		stalled:       map[string]bool{},
		pending:       map[string]*scheduler.Handle{},
	}
}

// Stall makes future loads of content never complete until Release is called.
func (l *Loader) Stall(content string) { l.stalled[content] = true }

// Release lifts a stall and completes any load already waiting on it.
func (l *Loader) Release(content string) {
	delete(l.stalled, content)
	if h, ok := l.pending[content]; ok {
		delete(l.pending, content)
		l.resident[content] = true
		h.Complete()
	}
}

func (l *Loader) LoadContent(content string, additive bool) *scheduler.Handle {
	l.loads++
	h := scheduler.NewHandle()
	if !additive {
		for c := range l.resident {
			delete(l.resident, c)
		}
	}
	if l.stalled[content] {
		l.log.Printf("stage: load of %s stalled", content)
		l.pending[content] = h
		return h
	}
	l.sched.Start(scheduler.Steps(
		func() scheduler.Wait { return l.sched.After(l.loadLatency) },
		func() scheduler.Wait {
			l.resident[content] = true
			h.Complete()
			return nil
		},
	))
	return h
}

func (l *Loader) UnloadContent(content string) *scheduler.Handle {
	l.unloads++
	h := scheduler.NewHandle()
	l.sched.Start(scheduler.Steps(
		func() scheduler.Wait { return l.sched.After(l.unloadLatency) },
		func() scheduler.Wait {
			delete(l.resident, content)
			h.Complete()
			return nil
		},
	))
	return h
}

func (l *Loader) Resident(content string) bool { return l.resident[content] }

// ResidentContents returns the loaded contents sorted by name.
func (l *Loader) ResidentContents() []string {
	out := make([]string, 0, len(l.resident))
	for c := range l.resident {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (l *Loader) Loads() uint64   { return l.loads }
func (l *Loader) Unloads() uint64 { return l.unloads }
