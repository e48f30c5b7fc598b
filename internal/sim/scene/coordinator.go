package scene

import (
	"io"
	"log"
	"time"

	"dshnews.game/internal/sim/events"
	"dshnews.game/internal/sim/geom"
	"dshnews.game/internal/sim/locations"
	"dshnews.game/internal/sim/scheduler"
)

type State int

const (
	StateIdle State = iota
	StateUnloading
	StateLoading
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateUnloading:
		return "UNLOADING"
	case StateLoading:
		return "LOADING"
	default:
		return "UNKNOWN"
	}
}

// Request is one accepted load request.
type Request struct {
	Location   *locations.Location
	Position   geom.Vec3
	FadeScreen bool
}

// ContentLoader is the engine side that brings location content in and out.
// Loads are additive: old and new content may be resident at the same time.
type ContentLoader interface {
	LoadContent(content string, additive bool) *scheduler.Handle
	UnloadContent(content string) *scheduler.Handle
}

// Fader is the full-screen fade cue. FadeOut darkens, FadeIn clears.
type Fader interface {
	FadeOut(d time.Duration)
	FadeIn(d time.Duration)
}

// Player is the player-controlled entity.
type Player interface {
	SetPosition(p geom.Vec3)
	SetActive(active bool)
}

// TransitionEntry describes one completed transition.
type TransitionEntry struct {
	Seq       uint64    `json:"seq"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Category  string    `json:"category"`
	Position  geom.Vec3 `json:"position"`
	Faded     bool      `json:"faded"`
	StartedAt int64     `json:"started_at_ms"`
	EndedAt   int64     `json:"ended_at_ms"`
	Frame     uint64    `json:"frame"`
}

type TransitionSink interface {
	WriteTransition(e TransitionEntry) error
}

type Config struct {
	FadeDuration time.Duration
	Logger       *log.Logger
}

// Deps are the coordinator's collaborators. Scheduler is required; any other
// field may be nil, in which case the matching step logs and is skipped.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Loader    ContentLoader
	Fader     Fader
	Player    Player

	// AfterLoad fires once per completed load of a LOCATION-category target.
	AfterLoad *events.Void
	// Unloading fires before the active location is unloaded and carries the
	// incoming request.
	Unloading *events.Channel[Request]
}

// Coordinator moves the session from the active location to a requested one.
// At most one transition runs at a time; requests arriving meanwhile are
// dropped. All methods must be called from the scheduler goroutine.
type Coordinator struct {
	sched     *scheduler.Scheduler
	loader    ContentLoader
	fader     Fader
	player    Player
	afterLoad *events.Void
	unloading *events.Channel[Request]
	sink      TransitionSink

	fadeDuration time.Duration
	log          *log.Logger

	state     State
	current   *locations.Location
	pending   Request
	from      string
	startedAt time.Duration
	completed uint64
	dropped   uint64
}

func New(cfg Config, deps Deps) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if deps.Scheduler == nil {
		deps.Scheduler = scheduler.New()
	}
	return &Coordinator{
		sched:        deps.Scheduler,
		loader:       deps.Loader,
		fader:        deps.Fader,
		player:       deps.Player,
		afterLoad:    deps.AfterLoad,
		unloading:    deps.Unloading,
		fadeDuration: cfg.FadeDuration,
		log:          logger,
	}
}

func (c *Coordinator) SetTransitionSink(s TransitionSink) { c.sink = s }

func (c *Coordinator) State() State                 { return c.state }
func (c *Coordinator) Current() *locations.Location { return c.current }
func (c *Coordinator) Completed() uint64            { return c.completed }
func (c *Coordinator) Dropped() uint64              { return c.dropped }

// Pending returns the in-flight request; ok is false while idle.
func (c *Coordinator) Pending() (Request, bool) {
	if c.state == StateIdle {
		return Request{}, false
	}
	return c.pending, true
}

// RequestLoad starts a transition to loc. It is a no-op while a transition is
// running or when loc is nil.
func (c *Coordinator) RequestLoad(loc *locations.Location, pos geom.Vec3, fadeScreen bool) {
	if c.state != StateIdle || loc == nil {
		c.dropped++
		return
	}
	c.pending = Request{Location: loc, Position: pos, FadeScreen: fadeScreen}
	c.startedAt = c.sched.Now()
	c.from = ""
	if c.current != nil {
		c.from = c.current.ID
		c.state = StateUnloading
		c.sched.Start(c.unloadPrevious())
		return
	}
	c.loadNew()
}

func (c *Coordinator) unloadPrevious() scheduler.Coroutine {
	return scheduler.Steps(
		func() scheduler.Wait {
			if c.pending.FadeScreen {
				if c.fader != nil {
					c.fader.FadeOut(c.fadeDuration)
				} else {
					c.log.Printf("scene: no fader assigned; skipping fade out")
				}
			}
			return c.sched.After(c.fadeDuration)
		},
		func() scheduler.Wait {
			c.unloading.Raise(c.pending)
			if c.current == nil {
				return nil
			}
			if c.loader == nil {
				c.log.Printf("scene: no content loader assigned; cannot unload %s", c.current.ID)
				return nil
			}
			if h := c.loader.UnloadContent(c.current.Content); h != nil {
				return h
			}
			return nil
		},
		func() scheduler.Wait {
			if c.player != nil {
				c.player.SetActive(false)
			}
			c.loadNew()
			return nil
		},
	)
}

func (c *Coordinator) loadNew() {
	c.state = StateLoading
	target := c.pending.Location
	if c.loader == nil {
		c.log.Printf("scene: no content loader assigned; %s will never finish loading", target.ID)
		return
	}
	h := c.loader.LoadContent(target.Content, true)
	if h == nil {
		c.log.Printf("scene: loader returned no handle for %s", target.ID)
		return
	}
	h.OnComplete(c.onLoadCompleted)
}

func (c *Coordinator) onLoadCompleted() {
	req := c.pending
	c.current = req.Location

	if c.player != nil {
		c.player.SetPosition(req.Position)
		c.player.SetActive(true)
	} else {
		c.log.Printf("scene: no player assigned; %s loaded without placing the player", req.Location.ID)
	}
	if req.FadeScreen {
		if c.fader != nil {
			c.fader.FadeIn(c.fadeDuration)
		} else {
			c.log.Printf("scene: no fader assigned; skipping fade in")
		}
	}

	c.state = StateIdle
	c.completed++
	if c.sink != nil {
		entry := TransitionEntry{
			Seq:       c.completed,
			From:      c.from,
			To:        req.Location.ID,
			Category:  string(req.Location.Category),
			Position:  req.Position,
			Faded:     req.FadeScreen,
			StartedAt: c.startedAt.Milliseconds(),
			EndedAt:   c.sched.Now().Milliseconds(),
			Frame:     c.sched.Frame(),
		}
		if err := c.sink.WriteTransition(entry); err != nil {
			c.log.Printf("scene: transition sink: %v", err)
		}
	}

	if c.current.Category == locations.CategoryLocation {
		c.afterLoad.Raise(struct{}{})
	}
}
