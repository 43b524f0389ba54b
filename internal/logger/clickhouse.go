package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const requestLogDDL = `
CREATE TABLE IF NOT EXISTS request_logs (
	id         UUID,
	task       LowCardinality(String),
	provider   LowCardinality(String),
	latency_ms UInt16,
	status     UInt16,
	cached     Bool,
	degraded   Bool,
	created_at DateTime
) ENGINE = MergeTree()
ORDER BY (created_at, provider)
TTL created_at + INTERVAL 90 DAY
`

// ClickHouseSink writes request log batches to a ClickHouse table for
// analytics. One INSERT per batch; entries that fail to append are skipped.
type ClickHouseSink struct {
	conn driver.Conn
}

// NewClickHouseSink connects to ClickHouse via dsn (clickhouse://...),
// verifies the connection, and ensures the request_logs table exists.
func NewClickHouseSink(ctx context.Context, dsn string) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: parse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse: ping: %w", err)
	}

	if err := conn.Exec(ctx, requestLogDDL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse: create table: %w", err)
	}

	return &ClickHouseSink{conn: conn}, nil
}

// Write implements Sink.
func (s *ClickHouseSink) Write(ctx context.Context, batch []RequestLog) error {
	b, err := s.conn.PrepareBatch(ctx, "INSERT INTO request_logs")
	if err != nil {
		return fmt.Errorf("clickhouse: prepare batch: %w", err)
	}

	for _, e := range batch {
		if err := b.Append(
			e.ID,
			e.Task,
			e.Provider,
			e.LatencyMs,
			e.Status,
			e.Cached,
			e.Degraded,
			normalizeTime(e.CreatedAt),
		); err != nil {
			return fmt.Errorf("clickhouse: append: %w", err)
		}
	}

	if err := b.Send(); err != nil {
		return fmt.Errorf("clickhouse: send: %w", err)
	}
	return nil
}

// Close releases the ClickHouse connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
