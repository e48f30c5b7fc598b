package stage

import (
	"time"

	"dshnews.game/internal/sim/scheduler"
)

// Screen is a full-screen overlay whose alpha runs from 0 (clear) to 1 (black).
type Screen struct {
	sched *scheduler.Scheduler
	alpha float64
	fade  *scheduler.Routine
}

func NewScreen(s *scheduler.Scheduler) *Screen {
	return &Screen{sched: s}
}

func (s *Screen) Alpha() float64 { return s.alpha }

// Fading reports whether a fade is still running.
func (s *Screen) Fading() bool { return s.fade != nil && !s.fade.Done() }

// FadeOut darkens the screen to black over d.
func (s *Screen) FadeOut(d time.Duration) { s.fadeTo(1, d) }

// FadeIn clears the screen over d.
func (s *Screen) FadeIn(d time.Duration) { s.fadeTo(0, d) }

func (s *Screen) fadeTo(target float64, d time.Duration) {
	s.fade.Stop()
	if d <= 0 {
		s.alpha = target
		s.fade = nil
		return
	}
	from := s.alpha
	var elapsed time.Duration
	first := true
	s.fade = s.sched.Start(scheduler.CoroutineFunc(func() (scheduler.Wait, bool) {
		if first {
			first = false
			return nil, true
		}
		elapsed += s.sched.DeltaTime()
		t := float64(elapsed) / float64(d)
		if t >= 1 {
			s.alpha = target
			return nil, false
		}
		s.alpha = from + (target-from)*t
		return nil, true
	}))
}
