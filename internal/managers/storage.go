package managers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/interfaces"
	"github.com/chrissnell/altiguard/internal/storage"
	"github.com/chrissnell/altiguard/internal/storage/memory"
	"github.com/chrissnell/altiguard/internal/storage/sqlite"
	"github.com/chrissnell/altiguard/internal/storage/timescaledb"
	"github.com/chrissnell/altiguard/pkg/config"
)

// StorageManager holds the active track store and its health record
type StorageManager struct {
	Store   *storage.Monitored
	Health  *storage.HealthManager
	Backend string
}

// NewStorageManager opens the configured backend and wraps it with health tracking.
func NewStorageManager(ctx context.Context, c config.StorageData, logger *zap.SugaredLogger) (*StorageManager, error) {
	var (
		store interfaces.Store
		err   error
	)

	switch c.Backend {
	case config.BackendMemory, "":
		store = memory.New(logger)
	case config.BackendSQLite:
		if c.SQLite == nil {
			return nil, fmt.Errorf("sqlite backend selected without a path")
		}
		store, err = sqlite.Open(c.SQLite.Path, logger)
	case config.BackendTimescaleDB:
		if c.TimescaleDB == nil {
			return nil, fmt.Errorf("timescaledb backend selected without a connection string")
		}
		store, err = timescaledb.New(ctx, *c.TimescaleDB, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("could not open %s storage backend: %w", c.Backend, err)
	}

	backend := c.Backend
	if backend == "" {
		backend = config.BackendMemory
	}
	health := storage.NewHealthManager()
	logger.Infof("using %s track store", backend)

	return &StorageManager{
		Store:   storage.NewMonitored(backend, store, health),
		Health:  health,
		Backend: backend,
	}, nil
}

// Close closes the underlying store.
func (s *StorageManager) Close() error {
	return s.Store.Close()
}
