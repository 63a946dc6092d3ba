package conversation

import (
	"fmt"

	"github.com/zhouzirui/agentdesk/backend/internal/config"
)

// Open builds the store selected by cfg.Driver.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.StorageSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	case config.StorageMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
