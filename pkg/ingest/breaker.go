package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/hermes"
)

// ErrSourceUnavailable is returned while the breaker around a source is open.
var ErrSourceUnavailable = errors.New("source unavailable")

// BreakerSource guards a Source with a circuit breaker so a failing backend is not hammered.
type BreakerSource struct {
	source Source
	cb     *gobreaker.CircuitBreaker
}

// NewBreakerSource trips after maxFailures consecutive failures and probes again after openTimeout.
func NewBreakerSource(name string, source Source, maxFailures uint32, openTimeout time.Duration, logger hermes.Logger) *BreakerSource {
	if logger == nil {
		logger = hermes.NewNoopLogger()
	}
	if maxFailures == 0 {
		maxFailures = 5
	}

	st := gobreaker.Settings{Name: name}
	st.Timeout = openTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= maxFailures
	}
	st.IsSuccessful = func(err error) bool {
		// Context cancellation is the caller's doing, not the backend's.
		return err == nil || errors.Is(err, context.Canceled)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn(context.Background(), "source breaker state changed", map[string]any{
			"source": name,
			"from":   from.String(),
			"to":     to.String(),
		})
	}
	return &BreakerSource{source: source, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerSource) Load(ctx context.Context, start, end time.Time) ([]domain.Observation, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.source.Load(ctx, start, end)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", b.cb.Name(), ErrSourceUnavailable)
	}
	if err != nil {
		return nil, err
	}
	return out.([]domain.Observation), nil
}

// State reports the breaker state: closed, half-open or open.
func (b *BreakerSource) State() string {
	return b.cb.State().String()
}
