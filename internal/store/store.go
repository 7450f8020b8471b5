// Package store provides storage backends for RoleBridge.
//
// Every backend serves three concerns: the expiring key/value records that
// back prompt sessions, the per-guild bind lists, and interaction
// deduplication. An in-memory store is used by default and in tests; SQLite
// and PostgreSQL are selected by DSN. Redis can additionally serve the
// session key/value concern through RedisKV.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/session"
)

const (
	// DefaultDedupRetention is how long processed interaction IDs are kept.
	// Discord never redelivers an interaction after its 15 minute token expires.
	DefaultDedupRetention = time.Hour
)

// BindRepo persists guild bind lists.
type BindRepo interface {
	// GetGuildBinds returns every bind saved for a guild, in insertion order.
	GetGuildBinds(ctx context.Context, guildID string) ([]models.GuildBind, error)
	// SaveGuildBinds replaces the bind list of a guild.
	SaveGuildBinds(ctx context.Context, guildID string, binds []models.GuildBind) error
}

// DedupRepo defines the interface for interaction deduplication.
type DedupRepo interface {
	// RecordInteraction inserts an interaction record. It returns false if the
	// interaction was already recorded (duplicate delivery).
	RecordInteraction(ctx context.Context, interactionID, userID string) (bool, error)
	// MarkProcessed sets the processed timestamp for an interaction.
	MarkProcessed(ctx context.Context, interactionID string) error
}

// Store is the full contract implemented by every backend.
type Store interface {
	session.KV
	BindRepo
	DedupRepo
	// SweepExpired removes expired session records and dedup rows older than
	// the retention window. It returns the number of rows removed.
	SweepExpired(ctx context.Context) (int64, error)
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN            string
	RedisURL       string
	DedupRetention time.Duration
	Now            func() time.Time
}

// Option configures a store implementation.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisURL sets the Redis URL used by RedisKV.
func WithRedisURL(url string) Option {
	return func(o *Opts) { o.RedisURL = url }
}

// WithDedupRetention overrides DefaultDedupRetention.
func WithDedupRetention(d time.Duration) Option {
	return func(o *Opts) { o.DedupRetention = d }
}

// WithClock replaces time.Now, for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

func applyOpts(opts []Option) Opts {
	cfg := Opts{DedupRetention: DefaultDedupRetention, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// DetectDSNType returns the database/sql driver name for a DSN:
// "postgres" for PostgreSQL URLs and key/value strings, "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return "postgres"
	default:
		return "sqlite3"
	}
}

// New opens the backend selected by the DSN option. An empty DSN yields an
// InMemoryStore.
func New(opts ...Option) (Store, error) {
	cfg := applyOpts(opts)
	if cfg.DSN == "" {
		return NewInMemoryStore(opts...), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		s, err := NewPostgresStore(opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := NewSQLiteStore(opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func unixMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
