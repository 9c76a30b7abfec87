package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/minos-eval/minos/pkg/config"
	"github.com/minos-eval/minos/pkg/domain"
)

// PostgresSource reads observations from a table with the columns
// ts, actual, median_forecast, lower_bound, upper_bound and baselines (JSON object).
type PostgresSource struct {
	db      *sqlx.DB
	table   string
	timeout time.Duration
}

type observationRow struct {
	Timestamp      time.Time      `db:"ts"`
	Actual         float64        `db:"actual"`
	MedianForecast float64        `db:"median_forecast"`
	LowerBound     float64        `db:"lower_bound"`
	UpperBound     float64        `db:"upper_bound"`
	Baselines      sql.NullString `db:"baselines"`
}

// OpenPostgres connects with the lib/pq driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

// NewPostgresSource reads from table, bounding every query by timeout.
func NewPostgresSource(db *sqlx.DB, table string, timeout time.Duration) (*PostgresSource, error) {
	if !config.IsIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q: %w", table, domain.ErrInvalidParameter)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PostgresSource{db: db, table: table, timeout: timeout}, nil
}

// Load returns the rows with start <= ts < end ordered by ts. A zero bound is open.
func (p *PostgresSource) Load(ctx context.Context, start, end time.Time) ([]domain.Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT ts, actual, median_forecast, lower_bound, upper_bound, baselines::text AS baselines
		FROM %s
		WHERE ($1::timestamptz IS NULL OR ts >= $1)
		  AND ($2::timestamptz IS NULL OR ts < $2)
		ORDER BY ts ASC`, p.table)

	var rows []observationRow
	if err := p.db.SelectContext(ctx, &rows, query, nullTime(start), nullTime(end)); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", p.table, err)
	}

	observations := make([]domain.Observation, 0, len(rows))
	for _, row := range rows {
		obs, err := row.observation()
		if err != nil {
			return nil, fmt.Errorf("row at %s: %w", row.Timestamp.Format(time.RFC3339), err)
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

// Save upserts observations keyed by timestamp in a single transaction.
func (p *PostgresSource) Save(ctx context.Context, observations []domain.Observation) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (ts, actual, median_forecast, lower_bound, upper_bound, baselines)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ts) DO UPDATE SET
			actual = EXCLUDED.actual,
			median_forecast = EXCLUDED.median_forecast,
			lower_bound = EXCLUDED.lower_bound,
			upper_bound = EXCLUDED.upper_bound,
			baselines = EXCLUDED.baselines`, p.table)

	for _, obs := range observations {
		baselines, err := encodeBaselines(obs.Baselines)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query,
			obs.Timestamp.UTC(), obs.Actual, obs.MedianForecast,
			obs.LowerBound, obs.UpperBound, baselines); err != nil {
			return fmt.Errorf("failed to upsert observation: %w", err)
		}
	}
	return tx.Commit()
}

func (r observationRow) observation() (domain.Observation, error) {
	obs := domain.Observation{
		Timestamp:      r.Timestamp.UTC(),
		Actual:         r.Actual,
		MedianForecast: r.MedianForecast,
		LowerBound:     r.LowerBound,
		UpperBound:     r.UpperBound,
	}
	if !r.Baselines.Valid || r.Baselines.String == "" {
		return obs, nil
	}

	var raw map[string]*float64
	if err := json.Unmarshal([]byte(r.Baselines.String), &raw); err != nil {
		return obs, fmt.Errorf("malformed baselines: %w", domain.ErrSchemaMismatch)
	}
	obs.Baselines = make(map[string]float64, len(raw))
	for name, v := range raw {
		if v == nil {
			obs.Baselines[name] = domain.Missing()
			continue
		}
		obs.Baselines[name] = *v
	}
	return obs, nil
}

func encodeBaselines(baselines map[string]float64) (sql.NullString, error) {
	if len(baselines) == 0 {
		return sql.NullString{}, nil
	}
	raw := make(map[string]*float64, len(baselines))
	for name, v := range baselines {
		if domain.IsMissing(v) {
			raw[name] = nil
			continue
		}
		raw[name] = &v
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal baselines: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
