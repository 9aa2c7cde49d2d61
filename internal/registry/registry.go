package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// HomeEnv overrides the directory holding the registry database.
const HomeEnv = "LANES_HOME"

// busyTimeoutMillis bounds how long a command waits on another command's
// write lock before giving up.
const busyTimeoutMillis = 5000

// Registry is the durable store of sessions, port allocations and
// reservations. Open one per command and close it before exiting.
type Registry struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the registry location: $LANES_HOME/registry.db, or
// ~/.lanes/registry.db.
func DefaultPath() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return filepath.Join(dir, "registry.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".lanes", "registry.db"), nil
}

// Exists reports whether a registry database file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// OpenDefault opens the registry at DefaultPath.
func OpenDefault() (*Registry, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Open creates or opens a registry database at path.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	r := &Registry{db: db, path: path}

	if err := r.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return r, nil
}

// dsn enables the bounded busy wait, cascading foreign keys and durable
// commits on every connection. Writers take the lock at BEGIN so two
// allocators never deadlock upgrading a read lock.
func dsn(path string) string {
	return fmt.Sprintf(
		"file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=FULL&_txlock=immediate",
		path, busyTimeoutMillis,
	)
}

// Path returns the database file location.
func (r *Registry) Path() string {
	return r.path
}

// Close closes the database connection
func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		project_root TEXT NOT NULL,
		session_dir TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL CHECK (mode IN ('docker', 'native')),
		in_place INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		destroyed_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active
		ON sessions(session_id, project_root) WHERE destroyed_at IS NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_in_place
		ON sessions(project_root) WHERE in_place = 1 AND destroyed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_sessions_dir ON sessions(session_dir);

	CREATE TABLE IF NOT EXISTS port_allocations (
		session_row INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		service TEXT NOT NULL,
		port INTEGER NOT NULL UNIQUE,
		PRIMARY KEY (session_row, service)
	);

	CREATE TABLE IF NOT EXISTS reservations (
		port INTEGER PRIMARY KEY,
		reason TEXT,
		created_at TEXT NOT NULL
	);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

const sessionColumns = `id, session_id, project_root, session_dir, branch, mode, in_place, created_at, destroyed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var mode, createdAt string
	var destroyedAt sql.NullString

	err := row.Scan(
		&s.Row, &s.ID, &s.ProjectRoot, &s.Dir, &s.Branch,
		&mode, &s.InPlace, &createdAt, &destroyedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Mode = Mode(mode)
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if destroyedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, destroyedAt.String)
		s.DestroyedAt = &t
	}

	return &s, nil
}

func (r *Registry) querySessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}

	return sessions, rows.Err()
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRow(ctx context.Context, ex execer, s *Session) (int64, error) {
	if !s.Mode.Valid() {
		return 0, fmt.Errorf("invalid mode %q", s.Mode)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	res, err := ex.ExecContext(ctx, `
		INSERT INTO sessions (session_id, project_root, session_dir, branch, mode, in_place, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.ProjectRoot, s.Dir, s.Branch, string(s.Mode), s.InPlace, timestamp(s.CreatedAt))
	if err != nil {
		if !isUniqueViolation(err) {
			return 0, fmt.Errorf("failed to insert session: %w", err)
		}
		if violatesSessionID(err) {
			return 0, &ConflictError{
				Kind:   ErrSessionExists,
				Detail: fmt.Sprintf("session %s in %s", s.ID, s.ProjectRoot),
				Err:    err,
			}
		}
		return 0, &ConflictError{Kind: ErrInPlaceExists, Detail: s.ProjectRoot, Err: err}
	}

	row, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read session row id: %w", err)
	}
	return row, nil
}

// Insert records a new active session without ports. It fails with
// ErrSessionExists when the project already has an active session with the
// same id, and with ErrInPlaceExists for a second active in-place session.
func (r *Registry) Insert(ctx context.Context, s *Session) error {
	row, err := insertRow(ctx, r.db, s)
	if err != nil {
		return err
	}
	s.Row = row
	s.DestroyedAt = nil
	return nil
}

// AssignPorts commits all of a session's port allocations in a single
// transaction. A session that has not been inserted yet (Row is zero) is
// inserted in the same transaction, so a new session and its ports become
// visible together or not at all. Another session or a reservation holding
// one of the ports surfaces as ErrPortTaken and nothing is written.
func (r *Registry) AssignPorts(ctx context.Context, s *Session, allocs []PortAllocation) error {
	if len(allocs) == 0 && s.Row != 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := s.Row
	if row == 0 {
		if row, err = insertRow(ctx, tx, s); err != nil {
			return err
		}
	}

	for _, a := range allocs {
		var reserved int
		err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations WHERE port = ?", a.Port).Scan(&reserved)
		if err != nil {
			return fmt.Errorf("failed to check reservations: %w", err)
		}
		if reserved > 0 {
			return &ConflictError{Kind: ErrPortTaken, Detail: fmt.Sprintf("port %d is reserved", a.Port)}
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO port_allocations (session_row, service, port) VALUES (?, ?, ?)",
			row, a.Service, a.Port,
		)
		if err == nil {
			continue
		}
		if isUniqueViolation(err) {
			if violatesPortColumn(err) {
				return &ConflictError{
					Kind:   ErrPortTaken,
					Detail: fmt.Sprintf("port %d for %s", a.Port, a.Service),
					Err:    err,
				}
			}
			return &ConflictError{
				Kind:   ErrConflict,
				Detail: fmt.Sprintf("service %s already has a port in session %s", a.Service, s.ID),
				Err:    err,
			}
		}
		return fmt.Errorf("failed to insert allocation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit allocations: %w", err)
	}

	s.Row = row
	s.DestroyedAt = nil
	return nil
}

// ListActive returns the active sessions of a project ordered by id.
func (r *Registry) ListActive(ctx context.Context, projectRoot string) ([]Session, error) {
	return r.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE project_root = ? AND destroyed_at IS NULL
		ORDER BY session_id
	`, projectRoot)
}

// ListAll returns active and destroyed sessions of a project.
func (r *Registry) ListAll(ctx context.Context, projectRoot string) ([]Session, error) {
	return r.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE project_root = ?
		ORDER BY session_id, created_at
	`, projectRoot)
}

// FindActive returns the active session with the given id. Destroyed rows
// are never returned.
func (r *Registry) FindActive(ctx context.Context, projectRoot, sessionID string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE project_root = ? AND session_id = ? AND destroyed_at IS NULL
	`, projectRoot, sessionID)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// FindActiveByDir returns the active session whose directory is dir.
func (r *Registry) FindActiveByDir(ctx context.Context, dir string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE session_dir = ? AND destroyed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, dir)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session in %s: %w", dir, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Ports returns the service→port allocations of a session.
func (r *Registry) Ports(ctx context.Context, s *Session) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT service, port FROM port_allocations WHERE session_row = ?", s.Row)
	if err != nil {
		return nil, fmt.Errorf("failed to query ports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ports := make(map[string]int)
	for rows.Next() {
		var service string
		var port int
		if err := rows.Scan(&service, &port); err != nil {
			return nil, err
		}
		ports[service] = port
	}

	return ports, rows.Err()
}

// MarkDestroyed soft-deletes an active session and releases its ports. It
// returns false when the session is absent or already destroyed.
func (r *Registry) MarkDestroyed(ctx context.Context, projectRoot, sessionID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM sessions
		WHERE project_root = ? AND session_id = ? AND destroyed_at IS NULL
	`, projectRoot, sessionID).Scan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to find session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET destroyed_at = ? WHERE id = ?", timestamp(time.Now()), row); err != nil {
		return false, fmt.Errorf("failed to mark session destroyed: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM port_allocations WHERE session_row = ?", row); err != nil {
		return false, fmt.Errorf("failed to release ports: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// Remove hard-deletes an active session together with its allocations. It
// returns false when there is no such active session.
func (r *Registry) Remove(ctx context.Context, projectRoot, sessionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE project_root = ? AND session_id = ? AND destroyed_at IS NULL
	`, projectRoot, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to remove session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeDestroyed hard-deletes every destroyed session of a project and
// returns how many rows were removed.
func (r *Registry) PurgeDestroyed(ctx context.Context, projectRoot string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE project_root = ? AND destroyed_at IS NOT NULL", projectRoot)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ExcludedPorts returns every port that must not be handed out: all
// allocated ports in every project plus all reservations.
func (r *Registry) ExcludedPorts(ctx context.Context) (map[int]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT port FROM port_allocations
		UNION
		SELECT port FROM reservations
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	used := make(map[int]struct{})
	for rows.Next() {
		var port int
		if err := rows.Scan(&port); err != nil {
			return nil, err
		}
		used[port] = struct{}{}
	}

	return used, rows.Err()
}

// Reserve excludes a port from allocation. A port currently allocated to a
// session cannot be reserved.
func (r *Registry) Reserve(ctx context.Context, port int, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var allocated int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM port_allocations WHERE port = ?", port).Scan(&allocated); err != nil {
		return fmt.Errorf("failed to check allocations: %w", err)
	}
	if allocated > 0 {
		return &ConflictError{Kind: ErrPortTaken, Detail: fmt.Sprintf("port %d", port)}
	}

	var nullableReason sql.NullString
	if reason != "" {
		nullableReason = sql.NullString{String: reason, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO reservations (port, reason, created_at) VALUES (?, ?, ?)",
		port, nullableReason, timestamp(time.Now()))
	if err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Kind: ErrPortReserved, Detail: fmt.Sprintf("port %d", port), Err: err}
		}
		return fmt.Errorf("failed to reserve port: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}
	return nil
}

// Unreserve removes a reservation, returning false if there was none.
func (r *Registry) Unreserve(ctx context.Context, port int) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM reservations WHERE port = ?", port)
	if err != nil {
		return false, fmt.Errorf("failed to unreserve port: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Reservations lists reserved ports in ascending order.
func (r *Registry) Reservations(ctx context.Context) ([]Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT port, COALESCE(reason, ''), created_at FROM reservations ORDER BY port")
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reservations []Reservation
	for rows.Next() {
		var res Reservation
		var createdAt string
		if err := rows.Scan(&res.Port, &res.Reason, &createdAt); err != nil {
			return nil, err
		}
		res.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		reservations = append(reservations, res)
	}

	return reservations, rows.Err()
}
