// Package database is the server's persisted account store and event log,
// backed by SQLite. The network core treats it purely as a synchronous
// lookup/insert dependency.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrUserExists indicates the account name is already taken.
	ErrUserExists = errors.New("user name already exists")
)

// LogType classifies server log entries.
type LogType int

const (
	LogError LogType = iota + 1
	LogWarning
	LogInfo
	LogSuccess
)

// User is one account row.
type User struct {
	ID             int64
	Name           string
	PasswordDigest string
	CreatedAt      time.Time
}

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS user (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts       INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	name     TEXT    NOT NULL UNIQUE,
	password TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS log (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ts      INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	type    INTEGER NOT NULL,
	message TEXT
);

CREATE TABLE IF NOT EXISTS user_history (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ts      INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	from_id INTEGER NOT NULL,
	to_id   INTEGER,
	message TEXT
);
`

// Open opens (creating if needed) the database at path and initializes the
// schema. The store uses a single connection; chat-scale write volume does
// not need a pool, and it sidesteps SQLite writer contention.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// WAL allows readers alongside the writer; busy_timeout makes SQLite
	// wait instead of failing with SQLITE_BUSY.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetUserByName returns the account for name, or nil when absent.
func (s *Store) GetUserByName(name string) (*User, error) {
	var u User
	var ts int64
	err := s.db.QueryRow(
		`SELECT id, ts, name, password FROM user WHERE name = ?`, name,
	).Scan(&u.ID, &ts, &u.Name, &u.PasswordDigest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", name, err)
	}
	u.CreatedAt = time.Unix(ts, 0)
	return &u, nil
}

// CreateUser inserts a new account. Returns ErrUserExists when the name is
// taken.
func (s *Store) CreateUser(name, passwordDigest string) error {
	_, err := s.db.Exec(
		`INSERT INTO user (name, password) VALUES (?, ?)`, name, passwordDigest,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user %q: %w", name, err)
	}
	return nil
}

// GetUserIDByName returns the account id for name, or 0 when no account
// exists. Sessions without an account are recorded as id 0 in history.
func (s *Store) GetUserIDByName(name string) int64 {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM user WHERE name = ?`, name).Scan(&id)
	if err != nil {
		return 0
	}
	return id
}

// AddLog appends a server log entry.
func (s *Store) AddLog(t LogType, message string) error {
	_, err := s.db.Exec(`INSERT INTO log (type, message) VALUES (?, ?)`, int(t), message)
	if err != nil {
		return fmt.Errorf("failed to add log entry: %w", err)
	}
	return nil
}

// AddHistory records a say or whisper. toID 0 marks a say (no single
// recipient); either id may be 0 for sessions without an account.
func (s *Store) AddHistory(fromID, toID int64, message string) error {
	_, err := s.db.Exec(
		`INSERT INTO user_history (from_id, to_id, message) VALUES (?, ?, ?)`,
		fromID, toID, message,
	)
	if err != nil {
		return fmt.Errorf("failed to add history entry: %w", err)
	}
	return nil
}
