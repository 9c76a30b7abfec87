package ingest

import (
	"context"
	"fmt"

	"github.com/minos-eval/minos/pkg/config"
	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/hermes"
)

// Sink persists observations.
type Sink interface {
	Save(ctx context.Context, observations []domain.Observation) error
}

// Backend is an opened structured source. Source is guarded by a circuit breaker.
type Backend struct {
	Kind   string
	Source Source
	Sink   Sink
	closer func() error
}

func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

// OpenBackend connects to the "redis" or "postgres" backend configured in cfg. dataset
// selects the Redis key; Postgres reads the configured table.
func OpenBackend(ctx context.Context, cfg *config.Config, kind, dataset string, logger hermes.Logger) (*Backend, error) {
	switch kind {
	case "redis":
		if dataset == "" {
			return nil, fmt.Errorf("redis source needs a dataset name: %w", domain.ErrInvalidParameter)
		}
		client, err := NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Password)
		if err != nil {
			return nil, err
		}
		src := NewRedisSource(client, dataset)
		return &Backend{
			Kind:   kind,
			Source: NewBreakerSource("redis", src, cfg.Breaker.MaxFailures, cfg.Breaker.OpenTimeout, logger),
			Sink:   src,
			closer: client.Close,
		}, nil

	case "postgres":
		db, err := OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		src, err := NewPostgresSource(db, cfg.Postgres.Table, cfg.Postgres.QueryTimeout)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &Backend{
			Kind:   kind,
			Source: NewBreakerSource("postgres", src, cfg.Breaker.MaxFailures, cfg.Breaker.OpenTimeout, logger),
			Sink:   src,
			closer: db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown source %q: %w", kind, domain.ErrInvalidParameter)
	}
}
