package scheduler

import (
	"context"
	"errors"
	"time"
)

// Wait is a suspension point yielded by a routine. The routine resumes on the
// first tick at which Ready reports true. A nil Wait resumes on the next tick.
type Wait interface {
	Ready() bool
}

// Coroutine runs to its next suspension point on each call to Next.
// ok=false means the routine finished and w is ignored.
type Coroutine interface {
	Next() (w Wait, ok bool)
}

// CoroutineFunc adapts a plain function to Coroutine.
type CoroutineFunc func() (Wait, bool)

func (f CoroutineFunc) Next() (Wait, bool) { return f() }

type steps struct {
	fns []func() Wait
	i   int
}

// Steps builds a coroutine from a fixed sequence. Each step runs, and the Wait
// it returns suspends the routine before the following step. A step returning
// nil continues straight into the next one within the same tick.
func Steps(fns ...func() Wait) Coroutine {
	return &steps{fns: fns}
}

func (s *steps) Next() (Wait, bool) {
	for s.i < len(s.fns) {
		fn := s.fns[s.i]
		s.i++
		if fn == nil {
			continue
		}
		if w := fn(); w != nil {
			return w, true
		}
	}
	return nil, false
}

type Routine struct {
	co   Coroutine
	wait Wait
	done bool
}

func (r *Routine) Stop() {
	if r != nil {
		r.done = true
	}
}

func (r *Routine) Done() bool { return r == nil || r.done }

// Scheduler is a frame-driven cooperative scheduler. Everything except Post
// and Do must be called from the goroutine that drives Tick.
type Scheduler struct {
	now   time.Duration
	dt    time.Duration
	frame uint64

	routines []*Routine

	inbox chan func()
}

func New() *Scheduler {
	return &Scheduler{inbox: make(chan func(), 256)}
}

func (s *Scheduler) Now() time.Duration       { return s.now }
func (s *Scheduler) DeltaTime() time.Duration { return s.dt }
func (s *Scheduler) Frame() uint64            { return s.frame }

// Active reports the number of routines that have not finished.
func (s *Scheduler) Active() int {
	n := 0
	for _, r := range s.routines {
		if !r.done {
			n++
		}
	}
	return n
}

// Start runs c up to its first suspension point and keeps it for later ticks.
func (s *Scheduler) Start(c Coroutine) *Routine {
	r := &Routine{co: c}
	if c == nil {
		r.done = true
		return r
	}
	s.advance(r)
	if !r.done {
		s.routines = append(s.routines, r)
	}
	return r
}

// Tick advances scheduler time by dt and resumes ready routines. Routines
// started while the tick runs are first resumed on the following tick.
func (s *Scheduler) Tick(dt time.Duration) {
	if dt < 0 {
		dt = 0
	}
	s.frame++
	s.dt = dt
	s.now += dt

	n := len(s.routines)
	for i := 0; i < n; i++ {
		r := s.routines[i]
		if r.done {
			continue
		}
		if r.wait != nil && !r.wait.Ready() {
			continue
		}
		s.advance(r)
	}

	live := s.routines[:0]
	for _, r := range s.routines {
		if !r.done {
			live = append(live, r)
		}
	}
	for i := len(live); i < len(s.routines); i++ {
		s.routines[i] = nil
	}
	s.routines = live
}

func (s *Scheduler) advance(r *Routine) {
	w, ok := r.co.Next()
	if !ok {
		r.done = true
		r.wait = nil
		return
	}
	r.wait = w
}

// After returns a Wait that becomes ready once d of scheduler time has passed.
func (s *Scheduler) After(d time.Duration) Wait {
	return &delay{s: s, until: s.now + d}
}

type delay struct {
	s     *Scheduler
	until time.Duration
}

func (d *delay) Ready() bool { return d.s.now >= d.until }

// Post queues fn to run on the scheduler goroutine before the next tick.
// It returns false when the inbox is full.
func (s *Scheduler) Post(fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	default:
		return false
	}
}

var ErrInboxFull = errors.New("scheduler inbox full")

// Do runs fn on the scheduler goroutine and waits for it to return.
func (s *Scheduler) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case s.inbox <- wrapped:
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

// Drain runs every queued inbox function without blocking.
func (s *Scheduler) Drain() int {
	n := 0
	for {
		select {
		case fn := <-s.inbox:
			if fn != nil {
				fn()
			}
			n++
		default:
			return n
		}
	}
}

// Run drives Tick from a wall-clock ticker until ctx is done. Posted
// functions run on the same goroutine between ticks.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("scheduler: non-positive tick interval")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.inbox:
			if fn != nil {
				fn()
			}
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			s.Tick(dt)
		}
	}
}
