// Package history records one metadata entry per render request.
//
// Records describe what was uploaded and how the request ended: the board id,
// the discovery manifest, counts, the outcome code and stage durations. They
// never hold layer content or rendered SVGs, so history cannot act as a render
// cache.
//
// Backends:
//   - [Null]: discards everything (the default)
//   - [Memory]: bounded in-process ring, newest first
//   - [RedisStore]: capped Redis list shared by several instances
//   - [MongoStore]: a MongoDB collection
//
// Writes are best effort. Callers log a failed [Store.Add] and carry on; a
// history outage never fails a render.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stentech/gerberstack/pkg/layer"
)

// DefaultKeep is the number of records retained by bounded backends.
const DefaultKeep = 200

// Outcome values other than an error code.
const OutcomeOK = "OK"

// Record is one render request.
type Record struct {
	ID        string         `json:"id" bson:"_id"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
	BoardID   string         `json:"board_id" bson:"board_id"`
	Source    string         `json:"source" bson:"source"`
	Manifest  layer.Manifest `json:"layers" bson:"layers"`
	Enabled   int            `json:"enabled" bson:"enabled"`
	Warnings  int            `json:"warnings" bson:"warnings"`

	// Outcome is OutcomeOK or the error code that ended the request.
	Outcome string `json:"outcome" bson:"outcome"`

	AggregateTime time.Duration `json:"aggregate_ns" bson:"aggregate_ns"`
	RenderTime    time.Duration `json:"render_ns" bson:"render_ns"`
}

// NewRecord creates a record with a fresh id and the current time.
func NewRecord(boardID, source string) *Record {
	return &Record{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		BoardID:   boardID,
		Source:    source,
		Outcome:   OutcomeOK,
	}
}

// OK reports whether the request succeeded.
func (r *Record) OK() bool {
	return r.Outcome == OutcomeOK
}

// Store persists render records.
type Store interface {
	// Add appends a record.
	Add(ctx context.Context, rec *Record) error

	// Recent returns up to limit records, newest first. A limit <= 0 means
	// the backend default.
	Recent(ctx context.Context, limit int) ([]*Record, error)

	// Close releases backend connections.
	Close() error
}

// Backend names accepted by [Open].
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string `toml:"backend"`
	RedisURL   string `toml:"redis_url"`
	RedisKey   string `toml:"redis_key"`
	MongoURI   string `toml:"mongo_uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
	Keep       int    `toml:"keep"`

	// ConnectAttempts and ConnectDelay retry the initial connection to redis
	// or mongo. The delay doubles after each failed attempt.
	ConnectAttempts int           `toml:"connect_attempts"`
	ConnectDelay    time.Duration `toml:"connect_delay"`
}

// DefaultConfig returns a configuration with history disabled.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendNone,
		RedisKey:   "gerberstack:renders",
		Database:   "gerberstack",
		Collection: "renders",
		Keep:       DefaultKeep,

		ConnectAttempts: 3,
		ConnectDelay:    time.Second,
	}
}

// Validate checks that the backend is known and has what it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case "", BackendNone, BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("history backend redis requires redis_url")
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("history backend mongo requires mongo_uri")
		}
	default:
		return fmt.Errorf("unknown history backend %q (must be one of: none, memory, redis, mongo)", c.Backend)
	}
	if c.Keep < 0 {
		return fmt.Errorf("history keep must not be negative")
	}
	return nil
}

// Open connects the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	def := DefaultConfig()
	if cfg.Keep == 0 {
		cfg.Keep = def.Keep
	}
	if cfg.ConnectDelay <= 0 {
		cfg.ConnectDelay = def.ConnectDelay
	}
	switch cfg.Backend {
	case BackendMemory:
		return NewMemory(cfg.Keep), nil
	case BackendRedis:
		if cfg.RedisKey == "" {
			cfg.RedisKey = def.RedisKey
		}
		var store *RedisStore
		err := retry(ctx, cfg.ConnectAttempts, cfg.ConnectDelay, func() (err error) {
			store, err = NewRedisStore(ctx, cfg.RedisURL, cfg.RedisKey, cfg.Keep)
			return err
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendMongo:
		if cfg.Database == "" {
			cfg.Database = def.Database
		}
		if cfg.Collection == "" {
			cfg.Collection = def.Collection
		}
		var store *MongoStore
		err := retry(ctx, cfg.ConnectAttempts, cfg.ConnectDelay, func() (err error) {
			store, err = NewMongoStore(ctx, cfg.MongoURI, cfg.Database, cfg.Collection, cfg.Keep)
			return err
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return Null{}, nil
	}
}

// Null is a Store that keeps nothing.
type Null struct{}

func (Null) Add(context.Context, *Record) error             { return nil }
func (Null) Recent(context.Context, int) ([]*Record, error) { return nil, nil }
func (Null) Close() error                                   { return nil }

var _ Store = Null{}

// Name returns the backend name of s for logs and hooks.
func Name(s Store) string {
	switch s.(type) {
	case nil, Null:
		return BackendNone
	case *Memory:
		return BackendMemory
	case *RedisStore:
		return BackendRedis
	case *MongoStore:
		return BackendMongo
	default:
		return "custom"
	}
}
