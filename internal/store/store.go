// Package store implements the persistent queue store: one SQLite file
// per queue, holding task records, their dependency edges, the manager
// singleton lock, and queue metadata.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a handle on one queue's backing SQLite file.
type Store struct {
	db      *sql.DB
	Path    string
	Name    string
	retrier retrier
}

// Open attaches to (creating if needed) the queue file at
// base_dir/name.sqlite, per spec.md section 4.1 open(name, base_dir).
func Open(baseDir, name string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create base dir: %w", err)
	}
	path := filepath.Join(baseDir, name+".sqlite")
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=60000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single-writer store: funnel every write through one connection so
	// compare-and-swap transitions never interleave inside this process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, Path: path, Name: name, retrier: newRetrier()}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) runMigrations() error {
	schema := `
CREATE TABLE IF NOT EXISTS tasks (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  app_name        TEXT NOT NULL,
  kind            TEXT NOT NULL,
  code_blob       TEXT NOT NULL DEFAULT '',
  args_blob       BLOB,
  kwargs_blob     BLOB,
  fingerprint     TEXT NOT NULL,
  state           TEXT NOT NULL,
  errno           INTEGER NOT NULL DEFAULT 0,
  out             TEXT NOT NULL DEFAULT '',
  err             TEXT NOT NULL DEFAULT '',
  result_ref      TEXT,
  jobid           TEXT NOT NULL DEFAULT '',
  lease_until     TIMESTAMP,
  created_at      TIMESTAMP NOT NULL,
  started_at      TIMESTAMP,
  finished_at     TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_state_created ON tasks(state, created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_fingerprint ON tasks(fingerprint);

-- One row per dependency edge: task id requires task "require".
CREATE TABLE IF NOT EXISTS requires (
  id       INTEGER NOT NULL,
  require  INTEGER NOT NULL,
  ord      INTEGER NOT NULL,
  FOREIGN KEY(id) REFERENCES tasks(id),
  FOREIGN KEY(require) REFERENCES tasks(id)
);
CREATE INDEX IF NOT EXISTS idx_requires_id ON requires(id);
CREATE INDEX IF NOT EXISTS idx_requires_require ON requires(require);

-- Queue-wide metadata: queue state (ACTIVE/PAUSED) today.
CREATE TABLE IF NOT EXISTS metadata (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

-- At most one live manager per queue; enforced by AcquireManagerLock.
CREATE TABLE IF NOT EXISTS manager_lock (
  id            INTEGER PRIMARY KEY CHECK (id = 1),
  owner         TEXT NOT NULL,
  pid           INTEGER NOT NULL,
  acquired_at   TIMESTAMP NOT NULL,
  heartbeat_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS config (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	_, err := s.db.Exec(`INSERT INTO metadata (key, value) VALUES ('state', 'ACTIVE')
		ON CONFLICT(key) DO NOTHING`)
	return err
}
