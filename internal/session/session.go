// Package session persists per-user prompt state between interactions.
//
// Each prompt instance owns one record keyed by command, prompt and user.
// Records expire after a fixed TTL that is refreshed on every write, which is
// the only lifecycle bound: an abandoned prompt simply times out.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is how long an idle prompt session survives.
	DefaultTTL = 5 * time.Minute
	// DefaultPrefix namespaces session records inside a shared KV.
	DefaultPrefix = "prompt_data"
	// PageField is the reserved field holding the current page ordinal.
	PageField = "__page"
)

// ErrSessionExpired is returned by a strict Load when no record exists.
var ErrSessionExpired = errors.New("prompt session expired")

// KV is the minimal key/value contract a session backend provides.
// Set overwrites the value and resets its expiry.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key identifies one prompt instance.
type Key struct {
	Command string
	Prompt  string
	UserID  int64
}

func (k Key) String() string {
	return k.Command + ":" + k.Prompt + ":" + strconv.FormatInt(k.UserID, 10)
}

// Data is a session record. Values are kept as raw JSON so that callers decode
// each field into its own type.
type Data map[string]json.RawMessage

// Put encodes v into field.
func (d Data) Put(field string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode session field %s: %w", field, err)
	}
	d[field] = raw
	return nil
}

// Get decodes field into v. It reports false when the field is absent.
func (d Data) Get(field string, v interface{}) (bool, error) {
	raw, ok := d[field]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("failed to decode session field %s: %w", field, err)
	}
	return true, nil
}

// Has reports whether field is present.
func (d Data) Has(field string) bool {
	_, ok := d[field]
	return ok
}

// ComponentValues is what a component submission stores under its ID.
type ComponentValues struct {
	Values []string          `json:"values,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// First returns the first selected value, if any.
func (c ComponentValues) First() string {
	if len(c.Values) == 0 {
		return ""
	}
	return c.Values[0]
}

// Opts holds configuration for a Store.
type Opts struct {
	TTL    time.Duration
	Prefix string
}

// Option configures a Store.
type Option func(*Opts)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		if ttl > 0 {
			o.TTL = ttl
		}
	}
}

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(o *Opts) {
		if prefix != "" {
			o.Prefix = prefix
		}
	}
}

// Store loads and saves session records on top of a KV.
type Store struct {
	kv     KV
	ttl    time.Duration
	prefix string
}

// NewStore creates a Store over kv.
func NewStore(kv KV, opts ...Option) *Store {
	cfg := Opts{TTL: DefaultTTL, Prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store{kv: kv, ttl: cfg.TTL, prefix: cfg.Prefix}
}

// TTL returns the configured record lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) storageKey(k Key) string {
	return s.prefix + ":" + k.String()
}

// Load fetches the record for k. A missing record yields empty Data when
// tolerateMissing is set, otherwise ErrSessionExpired.
func (s *Store) Load(ctx context.Context, k Key, tolerateMissing bool) (Data, error) {
	raw, ok, err := s.kv.Get(ctx, s.storageKey(k))
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", k, err)
	}
	if !ok {
		if tolerateMissing {
			return Data{}, nil
		}
		return nil, ErrSessionExpired
	}
	data := Data{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to decode session %s: %w", k, err)
		}
	}
	return data, nil
}

// Save merges fields into the stored record, top-level keys only, and resets
// the TTL.
func (s *Store) Save(ctx context.Context, k Key, fields Data) error {
	current, err := s.Load(ctx, k, true)
	if err != nil {
		return err
	}
	for name, v := range fields {
		current[name] = v
	}
	return s.write(ctx, k, current)
}

// Clear deletes the whole record, or only the named fields. Remaining fields
// are rewritten with a refreshed TTL.
func (s *Store) Clear(ctx context.Context, k Key, fields ...string) error {
	if len(fields) == 0 {
		if err := s.kv.Delete(ctx, s.storageKey(k)); err != nil {
			return fmt.Errorf("failed to clear session %s: %w", k, err)
		}
		slog.Debug("Store.Clear: session removed", "key", k.String())
		return nil
	}
	current, err := s.Load(ctx, k, true)
	if err != nil {
		return err
	}
	for _, f := range fields {
		delete(current, f)
	}
	return s.write(ctx, k, current)
}

func (s *Store) write(ctx context.Context, k Key, data Data) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", k, err)
	}
	if err := s.kv.Set(ctx, s.storageKey(k), raw, s.ttl); err != nil {
		return fmt.Errorf("failed to save session %s: %w", k, err)
	}
	slog.Debug("Store.write: session saved", "key", k.String(), "fields", fieldNames(data))
	return nil
}

func fieldNames(d Data) string {
	names := make([]string, 0, len(d))
	for n := range d {
		names = append(names, n)
	}
	return strings.Join(names, ",")
}
