package store

import (
	"fmt"
	"path/filepath"
)

// NewStore opens the configured Store backend rooted at dataDir.
//
// backend options:
//   - "sqlite" (default): SQLite FTS5 with WAL mode for concurrent readers
//   - "bleve": Bleve v2 full-text index, a pure Go alternative with no
//     external SQLite extension dependency
//
// An empty dataDir opens an in-memory SQLite store, used by tests.
func NewStore(dataDir string, backend string, sqliteCacheMB int) (Store, error) {
	switch backend {
	case "sqlite", "":
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "cascade.db")
		}
		return NewSQLiteStore(path, sqliteCacheMB)

	case "bleve":
		if dataDir == "" {
			return nil, fmt.Errorf("bleve backend requires a data directory")
		}
		return NewBleveStore(filepath.Join(dataDir, "bleve"))

	default:
		return nil, fmt.Errorf("unknown store backend: %s (valid options: sqlite, bleve)", backend)
	}
}
