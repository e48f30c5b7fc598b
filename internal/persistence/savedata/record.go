package savedata

import "dshnews.game/internal/sim/geom"

// CurrentVersion is written into every encoded record. Files without a
// version field predate it and decode as version 1.
const CurrentVersion = 1

// Record is the aggregate every participant saves into and restores from.
// Keys of the three maps are participant data ids (optionally suffixed, e.g.
// "progress.influence"); a later writer of the same key wins.
type Record struct {
	Version     int                  `json:"version"`
	SceneToSave string               `json:"sceneToSave"`
	Positions   map[string]geom.Vec3 `json:"characterPosDict"`
	Floats      map[string]float64   `json:"floatSavedData"`
	Bools       map[string]bool      `json:"boolSavedData"`
}

func NewRecord() *Record {
	r := &Record{Version: CurrentVersion}
	r.ensureMaps()
	return r
}

func (r *Record) ensureMaps() {
	if r.Positions == nil {
		r.Positions = map[string]geom.Vec3{}
	}
	if r.Floats == nil {
		r.Floats = map[string]float64{}
	}
	if r.Bools == nil {
		r.Bools = map[string]bool{}
	}
}

func (r *Record) SetPosition(id string, v geom.Vec3) {
	r.ensureMaps()
	r.Positions[id] = v
}

func (r *Record) Position(id string) (geom.Vec3, bool) {
	v, ok := r.Positions[id]
	return v, ok
}

func (r *Record) SetFloat(key string, v float64) {
	r.ensureMaps()
	r.Floats[key] = v
}

func (r *Record) Float(key string) (float64, bool) {
	v, ok := r.Floats[key]
	return v, ok
}

func (r *Record) SetBool(key string, v bool) {
	r.ensureMaps()
	r.Bools[key] = v
}

func (r *Record) Bool(key string) (bool, bool) {
	v, ok := r.Bools[key]
	return v, ok
}

// Empty reports whether nothing has been saved into r yet.
func (r *Record) Empty() bool {
	return r.SceneToSave == "" && len(r.Positions) == 0 && len(r.Floats) == 0 && len(r.Bools) == 0
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	out := &Record{Version: r.Version, SceneToSave: r.SceneToSave}
	out.ensureMaps()
	for k, v := range r.Positions {
		out.Positions[k] = v
	}
	for k, v := range r.Floats {
		out.Floats[k] = v
	}
	for k, v := range r.Bools {
		out.Bools[k] = v
	}
	return out
}

// ReplaceWith overwrites r in place so holders of the pointer see the new
// contents.
func (r *Record) ReplaceWith(src *Record) {
	c := src.Clone()
	*r = *c
}
