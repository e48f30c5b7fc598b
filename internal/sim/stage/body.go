package stage

import "dshnews.game/internal/sim/geom"

// Body is the player entity: a position and whether it is active in the world.
type Body struct {
	pos    geom.Vec3
	active bool
	moves  int
}

func NewBody() *Body { return &Body{} }

func (b *Body) SetPosition(p geom.Vec3) {
	b.pos = p
	b.moves++
}

func (b *Body) SetActive(active bool) { b.active = active }

func (b *Body) Position() geom.Vec3 { return b.pos }
func (b *Body) Active() bool        { return b.active }
func (b *Body) Moves() int          { return b.moves }
