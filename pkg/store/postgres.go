package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultSessionsLimit caps Sessions when no limit is given.
const DefaultSessionsLimit = 50

// Postgres stores sessions and messages.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// Migrate applies the embedded schema migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{p.logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) StartSession(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sessions (id, started_at) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		id, startedAt)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

func (p *Postgres) LogMessage(ctx context.Context, sessionID uuid.UUID, role conversation.Role, content string, at time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO messages (id, session_id, timestamp, role, content) VALUES ($1, $2, $3, $4, $5)`,
		id, sessionID, at, string(role), content)
	if err != nil {
		return uuid.Nil, fmt.Errorf("log message: %w", err)
	}
	return id, nil
}

// EndSession stamps ended_at once; later calls leave it unchanged.
func (p *Postgres) EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE sessions SET ended_at = COALESCE(ended_at, $2) WHERE id = $1`,
		id, endedAt)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SessionHistory returns a session's messages in time order.
func (p *Postgres) SessionHistory(ctx context.Context, id uuid.UUID) ([]Message, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, session_id, timestamp, role, content FROM messages WHERE session_id = $1 ORDER BY timestamp ASC, id ASC`,
		id)
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		var role string
		err := row.Scan(&m.ID, &m.SessionID, &m.Timestamp, &role, &m.Content)
		m.Role = conversation.Role(role)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	return out, nil
}

// Sessions lists the most recent sessions first.
func (p *Postgres) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultSessionsLimit
	}
	rows, err := p.pool.Query(ctx, `
		SELECT s.id, s.started_at, s.ended_at, COUNT(m.id)
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Session, error) {
		var s Session
		err := row.Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.Messages)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// Session returns one stored session.
func (p *Postgres) Session(ctx context.Context, id uuid.UUID) (Session, error) {
	var s Session
	err := p.pool.QueryRow(ctx, `
		SELECT s.id, s.started_at, s.ended_at, (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s WHERE s.id = $1`, id).Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.Messages)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...), "component", "migrate")
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "migrate")
}
