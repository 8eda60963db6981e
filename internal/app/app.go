// Package app wires configuration into the running components shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/powermatch/internal/cache"
	"github.com/agenthands/powermatch/internal/config"
	"github.com/agenthands/powermatch/internal/core"
	"github.com/agenthands/powermatch/internal/driver"
	"github.com/agenthands/powermatch/internal/logging"
	"github.com/agenthands/powermatch/internal/oracle"
	"github.com/agenthands/powermatch/internal/store"
)

type App struct {
	Config   *config.Config
	Store    *store.Store
	Cache    cache.Store
	Matcher  *core.Matcher
	Exporter *driver.Exporter

	graph  driver.GraphDriver
	logger *zap.Logger
}

// New opens the store, the cache, the oracle and, when enabled, the Memgraph connection.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	a := &App{Config: cfg, logger: logger}

	st, err := store.Open(cfg.Store.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.Store = st

	if a.Cache, err = OpenCache(cfg, st, logger); err != nil {
		a.Close(ctx)
		return nil, err
	}

	o, err := oracle.New(ctx, cfg, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create oracle: %w", err)
	}
	a.Matcher = core.NewMatcher(cfg, o, a.Cache, logger)

	if cfg.Memgraph.Enabled {
		d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password, logger)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("failed to connect to memgraph: %w", err)
		}
		if err := d.BuildIndices(ctx); err != nil {
			logger.Warn("failed to build indices", zap.Error(err))
		}
		a.graph = d
		a.Exporter = driver.NewExporter(d, logger)
	}
	return a, nil
}

// OpenCache builds the configured cache. The sqlite kind shares the run store.
func OpenCache(cfg *config.Config, st *store.Store, logger *zap.Logger) (cache.Store, error) {
	switch cfg.Cache.Kind {
	case config.CacheFile, "":
		c, err := cache.NewFileStore(cfg.Cache.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		return c, nil
	case config.CacheSQLite:
		if st == nil {
			return nil, errors.New("sqlite cache requires the store")
		}
		return st.Cache(), nil
	case config.CacheMemory:
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported cache kind: %s", cfg.Cache.Kind)
	}
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.graph != nil {
		errs = append(errs, a.graph.Close(ctx))
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
