// This file implements an SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/RoleBridge/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db        *sql.DB
	now       func() time.Time
	retention time.Duration
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY under concurrent interaction goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dsn", dsn)
	return &SQLiteStore{db: db, now: cfg.Now, retention: cfg.DedupRetention}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE key = ? AND expires_at > ?`,
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

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, unixMillis(s.now().Add(ttl)),
	)
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) GetGuildBinds(ctx context.Context, guildID string) ([]models.GuildBind, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT binds_json FROM guild_binds WHERE guild_id = ?`, guildID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query binds for guild %s: %w", guildID, err)
	}
	return decodeBinds(guildID, []byte(raw))
}

func (s *SQLiteStore) SaveGuildBinds(ctx context.Context, guildID string, binds []models.GuildBind) error {
	if len(binds) == 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM guild_binds WHERE guild_id = ?`, guildID); err != nil {
			return fmt.Errorf("failed to delete binds for guild %s: %w", guildID, err)
		}
		return nil
	}
	raw, err := encodeBinds(binds)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO guild_binds (guild_id, binds_json, updated_at) VALUES (?, ?, ?)`,
		guildID, string(raw), unixMillis(s.now()),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveGuildBinds failed", "error", err, "guild", guildID)
		return fmt.Errorf("failed to save binds for guild %s: %w", guildID, err)
	}
	slog.Debug("SQLiteStore SaveGuildBinds succeeded", "guild", guildID, "count", len(binds))
	return nil
}

func (s *SQLiteStore) RecordInteraction(ctx context.Context, interactionID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO inbound_dedup (interaction_id, user_id, received_at) VALUES (?, ?, ?)`,
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

func (s *SQLiteStore) MarkProcessed(ctx context.Context, interactionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_dedup SET processed_at = ? WHERE interaction_id = ?`,
		unixMillis(s.now()), interactionID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SweepExpired(ctx context.Context) (int64, error) {
	now := s.now()
	kv, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at <= ?`, unixMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep kv entries: %w", err)
	}
	dd, err := s.db.ExecContext(ctx, `DELETE FROM inbound_dedup WHERE received_at < ?`, unixMillis(now.Add(-s.retention)))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep dedup rows: %w", err)
	}
	return rowsAffected(kv) + rowsAffected(dd), nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
