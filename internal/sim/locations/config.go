package locations

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Menu       EntrySpec       `yaml:"menu"`
	First      EntrySpec       `yaml:"first"`
	Locations  []LocationSpec  `yaml:"locations"`
	Teleports  []TeleportSpec  `yaml:"teleports,omitempty"`
	Savepoints []SavepointSpec `yaml:"savepoints,omitempty"`
	Doors      []DoorSpec      `yaml:"doors,omitempty"`
}

// EntrySpec names the location and position used by "back to menu" and
// "new game".
type EntrySpec struct {
	Location string     `yaml:"location"`
	Position [3]float64 `yaml:"position"`
}

type LocationSpec struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category"`
	Content  string `yaml:"content"`
}

type TeleportSpec struct {
	ID       string     `yaml:"id"`
	Location string     `yaml:"location"`
	Target   string     `yaml:"target"`
	Position [3]float64 `yaml:"position"`
}

type SavepointSpec struct {
	ID       string `yaml:"id"`
	Location string `yaml:"location"`
}

type DoorSpec struct {
	ID        string `yaml:"id"`
	Location  string `yaml:"location"`
	StartOpen bool   `yaml:"start_open"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("locations.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("locations.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Menu:  EntrySpec{Location: "MENU"},
		First: EntrySpec{Location: "NEWSROOM", Position: [3]float64{0, 1, 0}},
		Locations: []LocationSpec{
			{ID: "MENU", Category: string(CategoryMenu), Content: "scenes/menu"},
			{ID: "NEWSROOM", Category: string(CategoryLocation), Content: "scenes/newsroom"},
			{ID: "STREET", Category: string(CategoryLocation), Content: "scenes/street"},
		},
		Teleports: []TeleportSpec{
			{ID: "newsroom_exit", Location: "NEWSROOM", Target: "STREET", Position: [3]float64{4, 1, -2}},
			{ID: "street_return", Location: "STREET", Target: "NEWSROOM", Position: [3]float64{0, 1, 3}},
		},
		Savepoints: []SavepointSpec{
			{ID: "newsroom_desk", Location: "NEWSROOM"},
			{ID: "street_kiosk", Location: "STREET"},
		},
		Doors: []DoorSpec{
			{ID: "newsroom_office_door", Location: "NEWSROOM"},
		},
	}
}

func (c *Config) Normalize() {
	for i := range c.Locations {
		l := &c.Locations[i]
		l.ID = strings.TrimSpace(l.ID)
		l.Category = strings.ToUpper(strings.TrimSpace(l.Category))
		if l.Category == "" {
			l.Category = string(CategoryLocation)
		}
		if strings.TrimSpace(l.Content) == "" {
			l.Content = "scenes/" + strings.ToLower(l.ID)
		}
	}
	c.Menu.Location = strings.TrimSpace(c.Menu.Location)
	c.First.Location = strings.TrimSpace(c.First.Location)
	if c.Menu.Location == "" {
		for _, l := range c.Locations {
			if l.Category == string(CategoryMenu) {
				c.Menu.Location = l.ID
				break
			}
		}
	}
	if c.First.Location == "" {
		for _, l := range c.Locations {
			if l.Category == string(CategoryLocation) {
				c.First.Location = l.ID
				break
			}
		}
	}
	for i := range c.Teleports {
		c.Teleports[i].ID = strings.TrimSpace(c.Teleports[i].ID)
	}
	for i := range c.Savepoints {
		c.Savepoints[i].ID = strings.TrimSpace(c.Savepoints[i].ID)
	}
	for i := range c.Doors {
		c.Doors[i].ID = strings.TrimSpace(c.Doors[i].ID)
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if len(c.Locations) == 0 {
		return fmt.Errorf("locations must not be empty")
	}
	seen := map[string]bool{}
	for _, l := range c.Locations {
		if l.ID == "" {
			return fmt.Errorf("location id must not be empty")
		}
		if seen[l.ID] {
			return fmt.Errorf("duplicate location id: %s", l.ID)
		}
		seen[l.ID] = true
		if !Category(l.Category).Valid() {
			return fmt.Errorf("location %s has unknown category %q", l.ID, l.Category)
		}
	}
	if !seen[c.Menu.Location] {
		return fmt.Errorf("menu location %q not found in locations", c.Menu.Location)
	}
	if !seen[c.First.Location] {
		return fmt.Errorf("first location %q not found in locations", c.First.Location)
	}

	// Point ids share one namespace: they double as save-data identifiers.
	points := map[string]bool{}
	claim := func(kind, id, loc string) error {
		if id == "" {
			return fmt.Errorf("%s id must not be empty", kind)
		}
		if points[id] {
			return fmt.Errorf("duplicate point id: %s", id)
		}
		points[id] = true
		if !seen[loc] {
			return fmt.Errorf("%s %s location %q not found", kind, id, loc)
		}
		return nil
	}
	for _, tp := range c.Teleports {
		if err := claim("teleport", tp.ID, tp.Location); err != nil {
			return err
		}
		if !seen[tp.Target] {
			return fmt.Errorf("teleport %s target %q not found", tp.ID, tp.Target)
		}
	}
	for _, sp := range c.Savepoints {
		if err := claim("savepoint", sp.ID, sp.Location); err != nil {
			return err
		}
	}
	for _, d := range c.Doors {
		if err := claim("door", d.ID, d.Location); err != nil {
			return err
		}
	}
	return nil
}
