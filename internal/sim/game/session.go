package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"

	"dshnews.game/internal/persistence/savestore"
	"dshnews.game/internal/sim/events"
	"dshnews.game/internal/sim/geom"
	"dshnews.game/internal/sim/locations"
	"dshnews.game/internal/sim/scene"
	"dshnews.game/internal/sim/scheduler"
	"dshnews.game/internal/sim/stage"
	"dshnews.game/internal/sim/tuning"
)

var (
	ErrUnknownPoint = errors.New("unknown point")
	ErrUnknownValue = errors.New("unknown value index")
	ErrBusy         = errors.New("transition in progress")
)

// Events are the session's channels. Transports subscribe to them from the
// scheduler goroutine (see Session.Do).
type Events struct {
	LoadRequest *events.Channel[scene.Request]
	NewGame     *events.Void
	BackToMenu  *events.Void
	Save        *events.Void
	Load        *events.Void
	Value       *events.Channel[ValueChange]

	AfterLoad    *events.Void
	Unloading    *events.Channel[scene.Request]
	Transitioned *events.Channel[scene.TransitionEntry]
	Saved        *events.Channel[savestore.SaveEntry]
	Loaded       *events.Void
}

func newEvents() Events {
	return Events{
		LoadRequest:  events.NewChannel[scene.Request]("load_request"),
		NewGame:      events.NewVoid("new_game"),
		BackToMenu:   events.NewVoid("back_to_menu"),
		Save:         events.NewVoid("save_data"),
		Load:         events.NewVoid("load_data"),
		Value:        events.NewChannel[ValueChange]("value"),
		AfterLoad:    events.NewVoid("after_scene_loaded"),
		Unloading:    events.NewChannel[scene.Request]("unloaded_scene"),
		Transitioned: events.NewChannel[scene.TransitionEntry]("transitioned"),
		Saved:        events.NewChannel[savestore.SaveEntry]("saved"),
		Loaded:       events.NewVoid("loaded"),
	}
}

type Config struct {
	Tuning  tuning.Tuning
	Catalog *locations.Catalog
	// SavePath is the save file. Empty keeps the record in memory only.
	SavePath string
	Logger   *log.Logger

	SaveSinks       []savestore.SaveSink
	TransitionSinks []scene.TransitionSink
}

// Session wires the coordinator, the persistence store and the world
// stand-ins into one running game.
type Session struct {
	tuning  tuning.Tuning
	catalog *locations.Catalog
	log     *log.Logger

	sched  *scheduler.Scheduler
	loader *stage.Loader
	screen *stage.Screen
	body   *stage.Body
	coord  *scene.Coordinator
	store  *savestore.Store
	events Events

	transitionSinks []scene.TransitionSink

	scene    *sceneParticipant
	player   *playerParticipant
	progress *progress

	savepoints map[string]*savepoint
	doors      map[string]*door
	resident   []savestore.Participant

	// restorePending makes the points adopted by the transition a load
	// started take their state from the record.
	restorePending bool

	saves uint64
	loads uint64
}

func New(cfg Config) (*Session, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("game: catalog is required")
	}
	cfg.Tuning.Normalize()
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	s := &Session{
		tuning:          cfg.Tuning,
		catalog:         cfg.Catalog,
		log:             logger,
		sched:           scheduler.New(),
		body:            stage.NewBody(),
		events:          newEvents(),
		transitionSinks: append([]scene.TransitionSink(nil), cfg.TransitionSinks...),
		savepoints:      map[string]*savepoint{},
		doors:           map[string]*door{},
	}
	s.loader = stage.NewLoader(s.sched, cfg.Tuning.LoadLatency(), cfg.Tuning.UnloadLatency(), logger)
	s.screen = stage.NewScreen(s.sched)
	s.coord = scene.New(scene.Config{FadeDuration: cfg.Tuning.FadeDuration(), Logger: logger}, scene.Deps{
		Scheduler: s.sched,
		Loader:    s.loader,
		Fader:     s.screen,
		Player:    s.body,
		AfterLoad: s.events.AfterLoad,
		Unloading: s.events.Unloading,
	})
	s.coord.SetTransitionSink(s)

	s.store = savestore.Open(cfg.SavePath, savestore.Options{Logger: logger, Sinks: cfg.SaveSinks})
	s.store.AddSink(s)

	for _, sp := range cfg.Catalog.AllSavepoints() {
		s.savepoints[sp.ID] = &savepoint{def: sp}
	}
	for _, d := range cfg.Catalog.AllDoors() {
		s.doors[d.ID] = &door{def: d, open: d.StartOpen}
	}

	s.scene = &sceneParticipant{s: s}
	s.player = &playerParticipant{id: cfg.Tuning.PlayerID, body: s.body}
	s.progress = &progress{id: cfg.Tuning.ProgressID}
	s.store.Register(s.scene)
	s.store.Register(s.player)
	s.store.Register(s.progress)

	s.subscribe()
	return s, nil
}

func (s *Session) subscribe() {
	ev := s.events
	ev.LoadRequest.Subscribe(func(r scene.Request) {
		s.coord.RequestLoad(r.Location, r.Position, r.FadeScreen)
	})
	ev.NewGame.Subscribe(func(struct{}) {
		first := s.catalog.First()
		ev.LoadRequest.Raise(scene.Request{Location: first.Location, Position: first.Position, FadeScreen: true})
	})
	ev.BackToMenu.Subscribe(func(struct{}) {
		menu := s.catalog.Menu()
		ev.LoadRequest.Raise(scene.Request{Location: menu.Location, Position: menu.Position, FadeScreen: true})
	})
	ev.Save.Subscribe(func(struct{}) {
		if err := s.save(); err != nil {
			s.log.Printf("save: %v", err)
		}
	})
	ev.Load.Subscribe(func(struct{}) { s.load() })
	ev.Value.Subscribe(func(v ValueChange) {
		if !s.progress.apply(v) {
			s.log.Printf("value: ignoring index %d", v.Index)
		}
	})
	ev.Unloading.Subscribe(func(scene.Request) { s.releaseResidents() })
}

// WriteTransition registers the points of the location that just became
// active and forwards the entry to the configured sinks.
func (s *Session) WriteTransition(e scene.TransitionEntry) error {
	s.adoptResidents(e.To)
	for _, sink := range s.transitionSinks {
		if err := sink.WriteTransition(e); err != nil {
			s.log.Printf("transition sink: %v", err)
		}
	}
	s.events.Transitioned.Raise(e)
	return nil
}

// RecordSave is the store's sink for completed saves.
func (s *Session) RecordSave(e savestore.SaveEntry) error {
	s.saves++
	s.events.Saved.Raise(e)
	return nil
}

// adoptResidents registers the points of a freshly loaded location.
func (s *Session) adoptResidents(locationID string) {
	var adopted []savestore.Participant
	for _, sp := range s.catalog.SavepointsIn(locationID) {
		adopted = append(adopted, s.savepoints[sp.ID])
	}
	for _, d := range s.catalog.DoorsIn(locationID) {
		adopted = append(adopted, s.doors[d.ID])
	}
	for _, p := range adopted {
		if s.restorePending {
			p.RestoreState(s.store.Record())
		}
		s.store.Register(p)
		s.resident = append(s.resident, p)
	}
	s.restorePending = false
}

func (s *Session) releaseResidents() {
	for _, p := range s.resident {
		s.store.Unregister(p)
	}
	s.resident = nil
}

func (s *Session) save() error {
	return s.store.Save()
}

func (s *Session) load() {
	s.store.Load()
	if s.coord.State() != scene.StateIdle {
		s.restorePending = true
	}
	s.loads++
	s.events.Loaded.Raise(struct{}{})
}

func (s *Session) Events() Events                 { return s.events }
func (s *Session) Scheduler() *scheduler.Scheduler { return s.sched }
func (s *Session) Coordinator() *scene.Coordinator { return s.coord }
func (s *Session) Store() *savestore.Store         { return s.store }

// Start brings up the menu.
func (s *Session) Start() {
	menu := s.catalog.Menu()
	s.events.LoadRequest.Raise(scene.Request{Location: menu.Location, Position: menu.Position, FadeScreen: true})
}

func (s *Session) NewGame() error {
	if s.coord.State() != scene.StateIdle {
		return ErrBusy
	}
	s.events.NewGame.Raise(struct{}{})
	return nil
}

func (s *Session) BackToMenu() error {
	if s.coord.State() != scene.StateIdle {
		return ErrBusy
	}
	s.events.BackToMenu.Raise(struct{}{})
	return nil
}

// Teleport uses a teleport point of the active location.
func (s *Session) Teleport(pointID string) error {
	tp, ok := s.catalog.Teleport(pointID)
	if !ok || !s.inCurrent(tp.Location) {
		return fmt.Errorf("%w: %s", ErrUnknownPoint, pointID)
	}
	if s.coord.State() != scene.StateIdle {
		return ErrBusy
	}
	s.events.LoadRequest.Raise(scene.Request{Location: tp.Target, Position: tp.Position, FadeScreen: true})
	return nil
}

// Interact uses any point of the active location: save points save once,
// doors toggle and teleports move the player.
func (s *Session) Interact(pointID string) error {
	if _, ok := s.catalog.Teleport(pointID); ok {
		return s.Teleport(pointID)
	}
	if p, ok := s.savepoints[pointID]; ok && s.inCurrent(p.def.Location) {
		if p.done {
			return nil
		}
		p.done = true
		s.events.Save.Raise(struct{}{})
		return nil
	}
	if d, ok := s.doors[pointID]; ok && s.inCurrent(d.def.Location) {
		d.open = !d.open
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownPoint, pointID)
}

func (s *Session) inCurrent(locationID string) bool {
	cur := s.coord.Current()
	return cur != nil && cur.ID == locationID && s.coord.State() == scene.StateIdle
}

func (s *Session) AdjustValue(index int, amount float64) error {
	if index != ValueInfluence && index != ValueViewership {
		return fmt.Errorf("%w: %d", ErrUnknownValue, index)
	}
	s.events.Value.Raise(ValueChange{Index: index, Amount: amount})
	return nil
}

// Save writes the save file now. Save points go through the Save channel
// instead, which logs failures.
func (s *Session) Save() error { return s.save() }

// Load restores every registered participant from the in-memory record.
func (s *Session) Load() { s.load() }

type Status struct {
	Location     string            `json:"location,omitempty"`
	Category     string            `json:"category,omitempty"`
	State        string            `json:"state"`
	Pending      string            `json:"pending,omitempty"`
	Position     geom.Vec3         `json:"position"`
	PlayerActive bool              `json:"player_active"`
	Fade         float64           `json:"fade"`
	Influence    float64           `json:"influence"`
	Viewership   float64           `json:"viewership"`
	Points       map[string]string `json:"points,omitempty"`
	Savepoints   map[string]bool   `json:"savepoints,omitempty"`
	Doors        map[string]bool   `json:"doors,omitempty"`
	Registered   []string          `json:"registered"`
	Transitions  uint64            `json:"transitions"`
	Saves        uint64            `json:"saves"`
	Loads        uint64            `json:"loads"`
	Frame        uint64            `json:"frame"`
	SavePath     string            `json:"save_path,omitempty"`
}

// Status reports the session as seen from the scheduler goroutine.
func (s *Session) Status() Status {
	st := Status{
		State:        s.coord.State().String(),
		Position:     s.body.Position(),
		PlayerActive: s.body.Active(),
		Fade:         s.screen.Alpha(),
		Influence:    s.progress.influence,
		Viewership:   s.progress.viewership,
		Transitions:  s.coord.Completed(),
		Saves:        s.saves,
		Loads:        s.loads,
		Frame:        s.sched.Frame(),
		SavePath:     s.store.Path(),
	}
	if cur := s.coord.Current(); cur != nil {
		st.Location = cur.ID
		st.Category = string(cur.Category)
		st.Points = map[string]string{}
		for _, tp := range s.catalog.TeleportsIn(cur.ID) {
			st.Points[tp.ID] = "teleport"
		}
		for _, sp := range s.catalog.SavepointsIn(cur.ID) {
			st.Points[sp.ID] = "savepoint"
		}
		for _, d := range s.catalog.DoorsIn(cur.ID) {
			st.Points[d.ID] = "door"
		}
	}
	if req, ok := s.coord.Pending(); ok {
		st.Pending = req.Location.ID
	}
	if len(s.savepoints) > 0 {
		st.Savepoints = map[string]bool{}
		for id, p := range s.savepoints {
			st.Savepoints[id] = p.done
		}
	}
	if len(s.doors) > 0 {
		st.Doors = map[string]bool{}
		for id, d := range s.doors {
			st.Doors[id] = d.open
		}
	}
	for _, p := range s.store.Participants() {
		st.Registered = append(st.Registered, p.DataID())
	}
	sort.Strings(st.Registered)
	return st
}

// Run ticks the session until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	return s.sched.Run(ctx, s.tuning.TickInterval())
}

// Do runs fn on the session goroutine. Use it for every call into the
// session from another goroutine.
func (s *Session) Do(ctx context.Context, fn func()) error {
	return s.sched.Do(ctx, fn)
}
