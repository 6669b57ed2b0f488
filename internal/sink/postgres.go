package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"store-sentinel/internal/models"
)

const alertsSchema = `
CREATE TABLE IF NOT EXISTS alert_events (
    event_id   TEXT PRIMARY KEY,
    ts         TIMESTAMPTZ NOT NULL,
    event_name TEXT NOT NULL,
    station_id TEXT NOT NULL,
    severity   TEXT NOT NULL,
    event_data JSONB NOT NULL
)`

// PostgresSink persists alerts for downstream consumers. The event_id
// primary key makes delivery idempotent: retried emissions of the same
// logical occurrence hit ON CONFLICT and are dropped.
type PostgresSink struct {
	pool *pgxpool.Pool
	ctx  context.Context
}

func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if _, err := pool.Exec(ctx, alertsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure alert_events table: %w", err)
	}
	return &PostgresSink{pool: pool, ctx: ctx}, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Emit(ev models.AlertEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal alert data %s: %w", ev.EventID, err)
	}
	query := `
        INSERT INTO alert_events (event_id, ts, event_name, station_id, severity, event_data)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (event_id) DO NOTHING`
	_, err = s.pool.Exec(s.ctx, query, ev.EventID, ev.Timestamp, ev.EventName, ev.StationID, string(ev.Severity), data)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", ev.EventID, err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
