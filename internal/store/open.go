package store

import (
	"fmt"
	"strings"

	"github.com/maktheus/AgentBenchMark/internal/config"
)

// DefaultSQLitePath is used when the config names sqlite storage without a path.
const DefaultSQLitePath = "data/agentbench.db"

// Open builds the Store named by the config.
func Open(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store: missing config")
	}

	storageType := strings.ToLower(strings.TrimSpace(cfg.Storage.Type))
	if storageType == "" {
		storageType = "sqlite"
	}

	switch storageType {
	case "sqlite":
		path := strings.TrimSpace(cfg.Storage.Path)
		if path == "" {
			path = DefaultSQLitePath
		}
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("store: unsupported type %q", storageType)
	}
}
