// Package stats keeps a SQLite table of listed sessions, synced from each
// listing so later consumers need not rescan every source.
package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/baaaaaaaka/agent_history/internal/session"
)

const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		source TEXT NOT NULL,
		backend TEXT NOT NULL,
		file TEXT NOT NULL,
		workspace TEXT NOT NULL,
		workspace_path TEXT NOT NULL DEFAULT '',
		rel_path TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL,
		modified_ns INTEGER NOT NULL,
		message_count INTEGER NOT NULL,
		synced_at_ns INTEGER NOT NULL,
		PRIMARY KEY (source, backend, file)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(backend, workspace);`,
}

type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating stats directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening stats database: %w", err)
	}
	s := &Store{db: db, path: path, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("stats database schema %d is newer than supported %d", version, schemaVersion)
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating stats schema: %w", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("writing schema version: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

// SyncResult counts what one Sync changed.
type SyncResult struct {
	Added     int
	Updated   int
	Removed   int
	Unchanged int
}

type rowKey struct {
	source  string
	backend string
	file    string
}

type rowState struct {
	size          int64
	modifiedNS    int64
	messageCount  int
	workspacePath string
}

// Sync makes the rows of the given sources match records. Rows are keyed by
// source, backend and file; unchanged files keep their row, rows of these
// sources that were not listed are removed once their file no longer exists.
// Records of sources not named in sources extend the set.
func (s *Store) Sync(ctx context.Context, sources []string, records []session.Record) (SyncResult, error) {
	var res SyncResult
	scope := map[string]bool{}
	for _, src := range sources {
		scope[src] = true
	}
	for _, r := range records {
		scope[r.Source] = true
	}
	if len(scope) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin sync: %w", err)
	}
	defer tx.Rollback()

	existing, err := loadRows(ctx, tx, scope)
	if err != nil {
		return res, err
	}

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO sessions (source, backend, file, workspace, workspace_path, rel_path, size, modified_ns, message_count, synced_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, backend, file) DO UPDATE SET
			workspace = excluded.workspace,
			workspace_path = excluded.workspace_path,
			rel_path = excluded.rel_path,
			size = excluded.size,
			modified_ns = excluded.modified_ns,
			message_count = excluded.message_count,
			synced_at_ns = excluded.synced_at_ns
	`)
	if err != nil {
		return res, fmt.Errorf("prepare upsert: %w", err)
	}
	defer upsert.Close()

	syncedAt := s.now().UnixNano()
	seen := map[rowKey]bool{}
	for _, r := range records {
		key := rowKey{source: r.Source, backend: r.Backend, file: r.File}
		if seen[key] {
			continue
		}
		seen[key] = true

		state := rowState{
			size:          r.Size,
			modifiedNS:    r.Modified.UnixNano(),
			messageCount:  r.MessageCount,
			workspacePath: r.WorkspacePath,
		}
		prev, ok := existing[key]
		if ok && !changed(prev, &state) {
			res.Unchanged++
			continue
		}
		if _, err := upsert.ExecContext(ctx, r.Source, r.Backend, r.File, r.Workspace, state.workspacePath,
			r.RelPath, state.size, state.modifiedNS, state.messageCount, syncedAt); err != nil {
			return res, fmt.Errorf("upsert %s: %w", r.File, err)
		}
		if ok {
			res.Updated++
		} else {
			res.Added++
		}
	}

	for key := range existing {
		if seen[key] {
			continue
		}
		// Rows a listing skipped stay until their file is gone.
		if _, err := os.Stat(key.file); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE source = ? AND backend = ? AND file = ?`,
			key.source, key.backend, key.file); err != nil {
			return res, fmt.Errorf("delete %s: %w", key.file, err)
		}
		res.Removed++
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit sync: %w", err)
	}
	return res, nil
}

// changed reports whether next differs from prev. A listing that skipped
// counting keeps the stored count and path.
func changed(prev rowState, next *rowState) bool {
	if next.messageCount == session.UnknownCount {
		next.messageCount = prev.messageCount
	}
	if next.workspacePath == "" {
		next.workspacePath = prev.workspacePath
	}
	return prev != *next
}

func loadRows(ctx context.Context, tx *sql.Tx, scope map[string]bool) (map[rowKey]rowState, error) {
	sources := make([]string, 0, len(scope))
	for src := range scope {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	args := make([]any, len(sources))
	for i, src := range sources {
		args[i] = src
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sources)), ",")

	rows, err := tx.QueryContext(ctx, `
		SELECT source, backend, file, size, modified_ns, message_count, workspace_path
		FROM sessions WHERE source IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	out := map[rowKey]rowState{}
	for rows.Next() {
		var (
			k  rowKey
			st rowState
		)
		if err := rows.Scan(&k.source, &k.backend, &k.file, &st.size, &st.modifiedNS, &st.messageCount, &st.workspacePath); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out[k] = st
	}
	return out, rows.Err()
}
