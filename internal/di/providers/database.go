package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/waypointapp/waypoint-server/internal/config"
	"github.com/waypointapp/waypoint-server/internal/logger"
	"github.com/waypointapp/waypoint-server/internal/sse"
	"github.com/waypointapp/waypoint-server/internal/store"
	"github.com/waypointapp/waypoint-server/internal/store/kv"
	"github.com/waypointapp/waypoint-server/internal/store/postgres"
	"github.com/waypointapp/waypoint-server/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the store client with shutdown capability.
type StoreHandle struct {
	*store.Client
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the configured record store backend.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	backend, location, err := OpenBackend(cfg, log)
	if err != nil {
		return nil, err
	}

	client, err := store.NewClient(backend, log.Logger)
	if err != nil {
		backend.Close()
		return nil, err
	}

	log.Info("Record store initialized", "backend", cfg.Store.Backend, "location", location)

	return &StoreHandle{Client: client}, nil
}

// OpenBackend opens the backend selected by cfg.Store. The returned location
// is safe to log.
func OpenBackend(cfg *config.Config, log *logger.Logger) (store.Backend, string, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		backend, err := postgres.Open(ctx, cfg.Store.DSN, log.Logger)
		if err != nil {
			return nil, "", err
		}
		return backend, "postgres", nil

	case config.BackendBadger:
		dir := cfg.Store.DSN
		if dir == "" {
			dir = filepath.Join(cfg.Data.BasePath, "kv")
		}
		backend, err := kv.Open(dir, log.Logger)
		if err != nil {
			return nil, "", err
		}
		return backend, dir, nil

	case config.BackendSQLite:
		path := cfg.Store.DSN
		if path == "" {
			if err := os.MkdirAll(cfg.Data.BasePath, 0o750); err != nil {
				return nil, "", fmt.Errorf("create data directory: %w", err)
			}
			path = filepath.Join(cfg.Data.BasePath, "waypoint.db")
		}
		backend, err := sqlite.Open(path, log.Logger)
		if err != nil {
			return nil, "", err
		}
		return backend, path, nil

	default:
		return nil, "", fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
