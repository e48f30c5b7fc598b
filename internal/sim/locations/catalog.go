package locations

import (
	"fmt"
	"sort"

	"dshnews.game/internal/sim/geom"
)

type Category string

const (
	CategoryMenu     Category = "MENU"
	CategoryLocation Category = "LOCATION"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryMenu, CategoryLocation:
		return true
	default:
		return false
	}
}

// Location is a loadable area. Values handed out by a Catalog are shared and
// must not be mutated.
type Location struct {
	ID       string
	Category Category
	Content  string
}

type Entry struct {
	Location *Location
	Position geom.Vec3
}

type Teleport struct {
	ID       string
	Location string
	Target   *Location
	Position geom.Vec3
}

type Savepoint struct {
	ID       string
	Location string
}

type Door struct {
	ID        string
	Location  string
	StartOpen bool
}

type Catalog struct {
	byID  map[string]*Location
	order []string

	menu  Entry
	first Entry

	teleports  map[string]Teleport
	savepoints map[string]Savepoint
	doors      map[string]Door
}

func NewCatalog(cfg Config) (*Catalog, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Catalog{
		byID:       map[string]*Location{},
		teleports:  map[string]Teleport{},
		savepoints: map[string]Savepoint{},
		doors:      map[string]Door{},
	}
	for _, l := range cfg.Locations {
		c.byID[l.ID] = &Location{ID: l.ID, Category: Category(l.Category), Content: l.Content}
		c.order = append(c.order, l.ID)
	}
	c.menu = Entry{Location: c.byID[cfg.Menu.Location], Position: geom.FromArray(cfg.Menu.Position)}
	c.first = Entry{Location: c.byID[cfg.First.Location], Position: geom.FromArray(cfg.First.Position)}
	for _, tp := range cfg.Teleports {
		c.teleports[tp.ID] = Teleport{
			ID:       tp.ID,
			Location: tp.Location,
			Target:   c.byID[tp.Target],
			Position: geom.FromArray(tp.Position),
		}
	}
	for _, sp := range cfg.Savepoints {
		c.savepoints[sp.ID] = Savepoint{ID: sp.ID, Location: sp.Location}
	}
	for _, d := range cfg.Doors {
		c.doors[d.ID] = Door{ID: d.ID, Location: d.Location, StartOpen: d.StartOpen}
	}
	return c, nil
}

// LoadCatalog reads a locations.yaml file; an empty path yields the built-in
// defaults.
func LoadCatalog(path string) (*Catalog, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cat, err := NewCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("locations: %w", err)
	}
	return cat, nil
}

func (c *Catalog) Get(id string) *Location { return c.byID[id] }

func (c *Catalog) IDs() []string { return append([]string(nil), c.order...) }

func (c *Catalog) Menu() Entry  { return c.menu }
func (c *Catalog) First() Entry { return c.first }

func (c *Catalog) Teleport(id string) (Teleport, bool) {
	tp, ok := c.teleports[id]
	return tp, ok
}

func (c *Catalog) Savepoint(id string) (Savepoint, bool) {
	sp, ok := c.savepoints[id]
	return sp, ok
}

func (c *Catalog) Door(id string) (Door, bool) {
	d, ok := c.doors[id]
	return d, ok
}

func (c *Catalog) TeleportsIn(locationID string) []Teleport {
	var out []Teleport
	for _, tp := range c.teleports {
		if tp.Location == locationID {
			out = append(out, tp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) SavepointsIn(locationID string) []Savepoint {
	var out []Savepoint
	for _, sp := range c.savepoints {
		if sp.Location == locationID {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllSavepoints returns every save point sorted by id.
func (c *Catalog) AllSavepoints() []Savepoint {
	out := make([]Savepoint, 0, len(c.savepoints))
	for _, sp := range c.savepoints {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) DoorsIn(locationID string) []Door {
	var out []Door
	for _, d := range c.doors {
		if d.Location == locationID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllDoors returns every door sorted by id.
func (c *Catalog) AllDoors() []Door {
	out := make([]Door, 0, len(c.doors))
	for _, d := range c.doors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
