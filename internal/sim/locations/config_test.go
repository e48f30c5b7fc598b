package locations

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_LocationsYAML(t *testing.T) {
	cfg, err := Load("../../../configs/locations.yaml")
	if err != nil {
		t.Fatalf("load locations.yaml: %v", err)
	}
	cat, err := NewCatalog(cfg)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if cat.Menu().Location == nil || cat.Menu().Location.Category != CategoryMenu {
		t.Fatalf("menu entry should point at a MENU location: %+v", cat.Menu())
	}
	if cat.First().Location == nil || cat.First().Location.Category != CategoryLocation {
		t.Fatalf("first entry should point at a LOCATION: %+v", cat.First())
	}
	tp, ok := cat.Teleport("newsroom_exit")
	if !ok || tp.Target == nil || tp.Target.ID != "STREET" {
		t.Fatalf("newsroom_exit teleport: %+v ok=%v", tp, ok)
	}
	if len(cat.SavepointsIn("STREET")) != 1 {
		t.Fatalf("expected one savepoint in STREET")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cat, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if len(cat.IDs()) == 0 {
		t.Fatalf("defaults should define locations")
	}
	if cat.Get("MENU") == nil {
		t.Fatalf("default MENU location missing")
	}
}

func TestNormalize_FillsCategoryContentAndEntries(t *testing.T) {
	cfg := Config{
		Locations: []LocationSpec{
			{ID: "TITLE", Category: "menu"},
			{ID: "ROOM"},
		},
	}
	cfg.Normalize()
	if cfg.Locations[0].Category != "MENU" || cfg.Locations[1].Category != "LOCATION" {
		t.Fatalf("categories not normalized: %+v", cfg.Locations)
	}
	if cfg.Locations[1].Content != "scenes/room" {
		t.Fatalf("content default=%q", cfg.Locations[1].Content)
	}
	if cfg.Menu.Location != "TITLE" || cfg.First.Location != "ROOM" {
		t.Fatalf("entries not synthesized: menu=%q first=%q", cfg.Menu.Location, cfg.First.Location)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	base := func() Config {
		return Config{
			Menu:  EntrySpec{Location: "M"},
			First: EntrySpec{Location: "A"},
			Locations: []LocationSpec{
				{ID: "M", Category: "MENU"},
				{ID: "A", Category: "LOCATION"},
			},
		}
	}
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"duplicate location", func(c *Config) { c.Locations = append(c.Locations, LocationSpec{ID: "A"}) }, "duplicate location"},
		{"bad category", func(c *Config) { c.Locations[1].Category = "DUNGEON" }, "unknown category"},
		{"missing menu", func(c *Config) { c.Menu.Location = "NOPE" }, "menu location"},
		{"teleport target", func(c *Config) {
			c.Teleports = []TeleportSpec{{ID: "t", Location: "A", Target: "Z"}}
		}, "target"},
		{"shared point id", func(c *Config) {
			c.Savepoints = []SavepointSpec{{ID: "p", Location: "A"}}
			c.Doors = []DoorSpec{{ID: "p", Location: "A"}}
		}, "duplicate point id"},
	}
	for _, tc := range cases {
		cfg := base()
		tc.mut(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err=%v want containing %q", tc.name, err, tc.want)
		}
	}
}

func TestLoad_BadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "locations.yaml")
	if err := os.WriteFile(p, []byte("locations: [:::"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected yaml error")
	}
}
