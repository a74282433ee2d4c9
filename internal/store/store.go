// Package store persists users, API keys, machines, peripherals, and
// transport routes in a single sqlite database under the data directory.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"conveyor/internal/auth"
)

// Sentinel errors mapped from sqlite failures so handlers can translate
// them into HTTP statuses without string matching.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Store wraps the sqlite database. A single writer connection with WAL
// keeps concurrent dashboard and machine traffic from tripping over
// SQLITE_BUSY.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (or opens) conveyor.db under dataDir, applies the schema,
// and seeds a default admin account when the users table is empty.
func Open(dataDir string) (*Store, error) {
	dataDir = filepath.Clean(dataDir)
	if strings.TrimSpace(dataDir) == "" {
		return nil, fmt.Errorf("dataDir is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "conveyor.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.ensureDefaultAdmin(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		key_hash TEXT NOT NULL,
		name TEXT,
		prefix TEXT,
		suffix TEXT,
		created_at INTEGER NOT NULL,
		last_used INTEGER,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash);
	CREATE TABLE IF NOT EXISTS machines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		api_key_id INTEGER,
		name TEXT,
		last_seen INTEGER,
		status TEXT NOT NULL DEFAULT 'offline',
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (api_key_id) REFERENCES api_keys(id) ON DELETE SET NULL
	);
	CREATE TABLE IF NOT EXISTS peripherals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		machine_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		type TEXT,
		location TEXT,
		last_updated INTEGER NOT NULL,
		FOREIGN KEY (machine_id) REFERENCES machines(id) ON DELETE CASCADE,
		UNIQUE(machine_id, name)
	);
	CREATE TABLE IF NOT EXISTS routes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		source_peripheral_id INTEGER NOT NULL,
		dest_peripheral_id INTEGER NOT NULL,
		item_filter TEXT,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (source_peripheral_id) REFERENCES peripherals(id) ON DELETE CASCADE,
		FOREIGN KEY (dest_peripheral_id) REFERENCES peripherals(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS route_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		route_id INTEGER NOT NULL,
		item_name TEXT NOT NULL,
		FOREIGN KEY (route_id) REFERENCES routes(id) ON DELETE CASCADE
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// ensureDefaultAdmin seeds admin/admin on a fresh database so the operator
// can log in and change the password immediately.
func (s *Store) ensureDefaultAdmin() error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword("admin")
	if err != nil {
		return fmt.Errorf("hash default admin password: %w", err)
	}
	if _, err := s.CreateUser("admin", hash, true); err != nil {
		return fmt.Errorf("create default admin: %w", err)
	}
	log.Warn().Msg("Created default admin user (admin/admin); change the password immediately")
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().Unix()
}

func timeFromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
