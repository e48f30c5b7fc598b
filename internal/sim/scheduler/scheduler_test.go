package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestStart_RunsToFirstSuspension(t *testing.T) {
	s := New()
	var trace []string
	r := s.Start(Steps(
		func() Wait { trace = append(trace, "a"); return nil },
		func() Wait { trace = append(trace, "b"); return s.After(100 * time.Millisecond) },
		func() Wait { trace = append(trace, "c"); return nil },
	))
	if len(trace) != 2 || trace[0] != "a" || trace[1] != "b" {
		t.Fatalf("trace after start=%v want [a b]", trace)
	}
	if r.Done() {
		t.Fatalf("routine should be suspended, not done")
	}

	s.Tick(50 * time.Millisecond)
	if len(trace) != 2 {
		t.Fatalf("resumed before delay elapsed: %v", trace)
	}
	s.Tick(50 * time.Millisecond)
	if len(trace) != 3 || trace[2] != "c" {
		t.Fatalf("trace=%v want [a b c]", trace)
	}
	if !r.Done() || s.Active() != 0 {
		t.Fatalf("routine should be finished: done=%v active=%d", r.Done(), s.Active())
	}
}

func TestNilWait_ResumesNextTick(t *testing.T) {
	s := New()
	frames := 0
	s.Start(CoroutineFunc(func() (Wait, bool) {
		frames++
		return nil, frames < 3
	}))
	if frames != 1 {
		t.Fatalf("frames=%d want 1 after start", frames)
	}
	s.Tick(time.Millisecond)
	s.Tick(time.Millisecond)
	if frames != 3 {
		t.Fatalf("frames=%d want 3", frames)
	}
	s.Tick(time.Millisecond)
	if frames != 3 || s.Active() != 0 {
		t.Fatalf("routine should have finished: frames=%d active=%d", frames, s.Active())
	}
}

func TestHandle_SuspendsUntilComplete(t *testing.T) {
	s := New()
	h := NewHandle()
	resumed := false
	s.Start(Steps(
		func() Wait { return h },
		func() Wait { resumed = true; return nil },
	))
	s.Tick(time.Second)
	if resumed {
		t.Fatalf("resumed on an incomplete handle")
	}
	h.Complete()
	if resumed {
		t.Fatalf("completion must not resume synchronously")
	}
	s.Tick(0)
	if !resumed {
		t.Fatalf("expected resume on the tick after completion")
	}
}

func TestHandle_CallbacksOrderAndIdempotence(t *testing.T) {
	h := NewHandle()
	var got []int
	h.OnComplete(func() { got = append(got, 1) })
	h.OnComplete(func() { got = append(got, 2) })
	h.Complete()
	h.Complete()
	h.OnComplete(func() { got = append(got, 3) })
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("callbacks=%v want [1 2 3]", got)
	}
	if !CompletedHandle().Ready() {
		t.Fatalf("CompletedHandle should be ready")
	}
}

func TestRoutineStartedDuringTick_WaitsForNextTick(t *testing.T) {
	s := New()
	var inner int
	s.Start(Steps(
		func() Wait { return nil },
		func() Wait { return s.After(0) },
		func() Wait {
			s.Start(CoroutineFunc(func() (Wait, bool) {
				inner++
				return nil, inner < 2
			}))
			return nil
		},
	))
	s.Tick(time.Millisecond)
	if inner != 1 {
		t.Fatalf("inner=%d want 1 (only the synchronous start)", inner)
	}
	s.Tick(time.Millisecond)
	if inner != 2 {
		t.Fatalf("inner=%d want 2", inner)
	}
}

func TestStop_PreventsResume(t *testing.T) {
	s := New()
	n := 0
	r := s.Start(CoroutineFunc(func() (Wait, bool) {
		n++
		return nil, true
	}))
	r.Stop()
	s.Tick(time.Millisecond)
	if n != 1 {
		t.Fatalf("stopped routine resumed: n=%d", n)
	}
	if s.Active() != 0 {
		t.Fatalf("active=%d want 0", s.Active())
	}
}

func TestRunAndDo(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx, time.Millisecond) }()

	var frame uint64
	deadline := time.Now().Add(2 * time.Second)
	for frame < 3 && time.Now().Before(deadline) {
		if err := s.Do(ctx, func() { frame = s.Frame() }); err != nil {
			t.Fatalf("do: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if frame < 3 {
		t.Fatalf("scheduler did not tick: frame=%d", frame)
	}
}

func TestPostAndDrain(t *testing.T) {
	s := New()
	n := 0
	for i := 0; i < 3; i++ {
		if !s.Post(func() { n++ }) {
			t.Fatalf("post %d rejected", i)
		}
	}
	if got := s.Drain(); got != 3 || n != 3 {
		t.Fatalf("drain=%d n=%d want 3/3", got, n)
	}
}
