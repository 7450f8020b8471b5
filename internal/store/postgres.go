// This file implements a PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/RoleBridge/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db        *sql.DB
	now       func() time.Time
	retention time.Duration
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db, now: cfg.Now, retention: cfg.DedupRetention}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE key = $1 AND expires_at > $2`,
		key, unixMillis(s.now()),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, unixMillis(s.now().Add(ttl)),
	)
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) GetGuildBinds(ctx context.Context, guildID string) ([]models.GuildBind, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT binds_json FROM guild_binds WHERE guild_id = $1`, guildID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query binds for guild %s: %w", guildID, err)
	}
	return decodeBinds(guildID, raw)
}

func (s *PostgresStore) SaveGuildBinds(ctx context.Context, guildID string, binds []models.GuildBind) error {
	if len(binds) == 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM guild_binds WHERE guild_id = $1`, guildID); err != nil {
			return fmt.Errorf("failed to delete binds for guild %s: %w", guildID, err)
		}
		return nil
	}
	raw, err := encodeBinds(binds)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO guild_binds (guild_id, binds_json, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (guild_id) DO UPDATE SET binds_json = EXCLUDED.binds_json, updated_at = EXCLUDED.updated_at`,
		guildID, string(raw), unixMillis(s.now()),
	)
	if err != nil {
		slog.Error("PostgresStore SaveGuildBinds failed", "error", err, "guild", guildID)
		return fmt.Errorf("failed to save binds for guild %s: %w", guildID, err)
	}
	slog.Debug("PostgresStore SaveGuildBinds succeeded", "guild", guildID, "count", len(binds))
	return nil
}

func (s *PostgresStore) RecordInteraction(ctx context.Context, interactionID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_dedup (interaction_id, user_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (interaction_id) DO NOTHING`,
		interactionID, userID, unixMillis(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("record interaction failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, interactionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_dedup SET processed_at = $1 WHERE interaction_id = $2`,
		unixMillis(s.now()), interactionID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) SweepExpired(ctx context.Context) (int64, error) {
	now := s.now()
	kv, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at <= $1`, unixMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep kv entries: %w", err)
	}
	dd, err := s.db.ExecContext(ctx, `DELETE FROM inbound_dedup WHERE received_at < $1`, unixMillis(now.Add(-s.retention)))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep dedup rows: %w", err)
	}
	return rowsAffected(kv) + rowsAffected(dd), nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
