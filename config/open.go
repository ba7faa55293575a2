package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/graphbound/neogm/graph"
	"github.com/graphbound/neogm/graph/memstore"
	"github.com/graphbound/neogm/graph/redistore"
	"github.com/graphbound/neogm/graph/sqlstore"
)

// Open connects to the store described by the configuration.
//
// For the redis backend the endpoints are probed in order with a bounded
// liveness check each; the first endpoint that answers wins. Open returns
// ErrNoEndpoint only after every candidate has been tried.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (graph.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMemory:
		return memstore.New(), nil

	case BackendSQLite:
		return sqlstore.Open(cfg.Database)

	case BackendRedis:
		return openRedis(ctx, cfg, logger)

	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}
}

func openRedis(ctx context.Context, cfg *Config, logger *slog.Logger) (graph.Client, error) {
	timeout := cfg.GetProbeTimeout()

	for _, endpoint := range cfg.Endpoints {
		store, err := redistore.Open(redistore.Options{
			URL:            endpoint,
			ConnectTimeout: timeout,
		})
		if err != nil {
			logger.Warn("endpoint probe failed",
				"endpoint", endpoint,
				"error", err)
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err = store.Ping(probeCtx)
		cancel()
		if err != nil {
			logger.Warn("endpoint probe failed",
				"endpoint", endpoint,
				"error", err)
			store.Close()
			continue
		}

		logger.Debug("connected to graph store", "endpoint", endpoint)
		return store, nil
	}

	return nil, fmt.Errorf("%w: tried %d candidate(s)", ErrNoEndpoint, len(cfg.Endpoints))
}
