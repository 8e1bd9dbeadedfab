package acct

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// PQSink persists accounting events (not log lines, and never ring state)
// to a Postgres audit table. Optional: wired only when
// AcctConfig.PostgresDSN is set.
type PQSink struct {
	db *sql.DB
}

// NewPQSink opens dsn and verifies connectivity with a short ping.
func NewPQSink(dsn string) (*PQSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("acct: open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("acct: ping postgres: %w", err)
	}

	return &PQSink{db: db}, nil
}

// EnsureSchema creates the audit table if it does not already exist.
func (p *PQSink) EnsureSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS greyd_audit_events (
	id         BIGSERIAL PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	kind       TEXT NOT NULL,
	message    TEXT NOT NULL
)`
	_, err := p.db.ExecContext(ctx, stmt)
	return err
}

// Close closes the underlying connection pool.
func (p *PQSink) Close() error {
	return p.db.Close()
}

// Log is a no-op: PQSink only persists accounting events, not log lines.
func (p *PQSink) Log(level Level, message string) {}

// Acct issues the INSERT on its own goroutine, bounded by a 2-second
// timeout, so the caller never waits on Postgres. A failed insert is
// logged and not retried.
func (p *PQSink) Acct(kind EventKind, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := p.db.ExecContext(ctx,
			`INSERT INTO greyd_audit_events (kind, message) VALUES ($1, $2)`,
			kind.String(), message)
		if err != nil {
			slog.Warn("acct: postgres insert failed", "kind", kind.String(), "error", err)
		}
	}()
}
