package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"dshnews.game/internal/persistence/indexdb"
	"dshnews.game/internal/persistence/savestore"
	"dshnews.game/internal/sim/locations"
	"dshnews.game/internal/sim/scene"
	"dshnews.game/internal/sim/tuning"
)

type runtimeIndex interface {
	scene.TransitionSink
	savestore.SaveSink
	Close() error
	Stats() indexdb.Stats
	UpsertCatalog(cat *locations.Catalog, tune tuning.Tuning) error
	RecentTransitions(ctx context.Context, limit int) ([]indexdb.TransitionRow, error)
}

func openRuntimeIndex(dataDir string, disableDB bool, backend string, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", "dshnews.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Printf("index backend sqlite at %s", dbPath)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported DSH_INDEX_BACKEND: %s", backend)
	}
}
