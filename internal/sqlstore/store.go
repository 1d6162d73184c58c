package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned when a write addresses a record that does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrRecordExists is returned when CREATE addresses an existing record.
	ErrRecordExists = errors.New("record already exists")
	// ErrUnsupported is returned for statements the loopback server cannot run.
	ErrUnsupported = errors.New("unsupported statement")
	// ErrAuthentication is returned by SignIn for unknown users or wrong passwords.
	ErrAuthentication = errors.New("there was a problem with authentication")
)

// Store is safe for concurrent use. SQLite allows a single writer, so the pool is
// limited to one connection and statements run one at a time.
type Store struct {
	db *sql.DB

	mu        sync.RWMutex
	url       string
	users     map[string]string
	secret    []byte
	tokenTTL  time.Duration
	namespace string
	database  string
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithUser registers a user that may sign in. Without any users every sign-in succeeds.
func WithUser(username, password string) Option {
	return func(s *Store) {
		s.users[username] = password
	}
}

// WithSigningKey sets the HMAC key used for issued tokens.
func WithSigningKey(key []byte) Option {
	return func(s *Store) {
		s.secret = key
	}
}

// WithTokenTTL sets how long issued tokens are valid.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.tokenTTL = ttl
	}
}

// WithScope sets the namespace and database reported in tokens when the
// credentials do not name them.
func WithScope(namespace, database string) Option {
	return func(s *Store) {
		s.namespace = namespace
		s.database = database
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open creates or opens the database at path. ":memory:" gives a private, empty store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: a second one would see a different ":memory:" database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:        db,
		users:     map[string]string{},
		secret:    []byte("querystate-loopback"),
		tokenTTL:  time.Hour,
		namespace: "local",
		database:  "local",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Connect records the url. There is nothing to dial.
func (s *Store) Connect(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	return nil
}

// URL returns the address passed to the last Connect.
func (s *Store) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}
