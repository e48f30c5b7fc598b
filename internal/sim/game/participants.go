package game

import (
	"dshnews.game/internal/persistence/savedata"
	"dshnews.game/internal/sim/locations"
	"dshnews.game/internal/sim/stage"
)

// sceneParticipant saves the active location and, on restore, sends the
// player back to it.
type sceneParticipant struct {
	s *Session
}

func (p *sceneParticipant) DataID() string { return "scene" }

func (p *sceneParticipant) ContributeState(r *savedata.Record) {
	if cur := p.s.coord.Current(); cur != nil {
		r.SceneToSave = cur.ID
	}
}

func (p *sceneParticipant) RestoreState(r *savedata.Record) {
	pos, ok := r.Position(p.s.tuning.PlayerID)
	if !ok {
		return
	}
	loc := p.s.catalog.Get(r.SceneToSave)
	if loc == nil {
		p.s.log.Printf("load: saved location %q is not in the catalog", r.SceneToSave)
		return
	}
	p.s.coord.RequestLoad(loc, pos, true)
}

type playerParticipant struct {
	id   string
	body *stage.Body
}

func (p *playerParticipant) DataID() string { return p.id }

func (p *playerParticipant) ContributeState(r *savedata.Record) {
	r.SetPosition(p.id, p.body.Position())
}

// Placement happens when the saved location finishes loading.
func (p *playerParticipant) RestoreState(*savedata.Record) {}

const (
	ValueInfluence  = 1
	ValueViewership = 2
)

type ValueChange struct {
	Index  int
	Amount float64
}

type progress struct {
	id         string
	influence  float64
	viewership float64
}

func (p *progress) DataID() string { return p.id }

func (p *progress) apply(v ValueChange) bool {
	switch v.Index {
	case ValueInfluence:
		p.influence += v.Amount
	case ValueViewership:
		p.viewership += v.Amount
	default:
		return false
	}
	return true
}

func (p *progress) ContributeState(r *savedata.Record) {
	r.SetFloat(p.id+".influence", p.influence)
	r.SetFloat(p.id+".viewership", p.viewership)
}

func (p *progress) RestoreState(r *savedata.Record) {
	if v, ok := r.Float(p.id + ".influence"); ok {
		p.influence = v
	}
	if v, ok := r.Float(p.id + ".viewership"); ok {
		p.viewership = v
	}
}

// savepoint raises a save the first time it is used.
type savepoint struct {
	def  locations.Savepoint
	done bool
}

func (p *savepoint) DataID() string                      { return p.def.ID }
func (p *savepoint) ContributeState(r *savedata.Record) { r.SetBool(p.def.ID, p.done) }
func (p *savepoint) RestoreState(r *savedata.Record) {
	if v, ok := r.Bool(p.def.ID); ok {
		p.done = v
	}
}

type door struct {
	def  locations.Door
	open bool
}

func (p *door) DataID() string                      { return p.def.ID }
func (p *door) ContributeState(r *savedata.Record) { r.SetBool(p.def.ID, p.open) }
func (p *door) RestoreState(r *savedata.Record) {
	if v, ok := r.Bool(p.def.ID); ok {
		p.open = v
	}
}
