package main

import (
	"fmt"
	"os"
	"strings"

	"tactica.ai/internal/persistence/indexdb"
)

// openRuntimeIndex opens the session read-model. It never affects the
// simulation; a nil index just means nothing is mirrored.
func openRuntimeIndex(path string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB || strings.TrimSpace(path) == "" {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TACTICA_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported TACTICA_INDEX_BACKEND: %s", backend)
	}
}
