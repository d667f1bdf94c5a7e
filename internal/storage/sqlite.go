package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the knowledge base and the help
// request ledger.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "frontdesk.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Knowledge base ---

// InsertKnowledge appends a question/answer pair. The knowledge base never
// rejects and never deduplicates; repeated questions accumulate.
func (s *Store) InsertKnowledge(e KnowledgeEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO knowledge (id, question, answer, source, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Question, e.Answer, e.Source, e.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// LookupAnswer returns the answer of the first stored entry (in insertion
// order) whose question matches the query per MatchQuestion. An empty store
// simply yields no match.
func (s *Store) LookupAnswer(query string) (string, bool, error) {
	rows, err := s.db.Query(`SELECT question, answer FROM knowledge ORDER BY rowid ASC`)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	for rows.Next() {
		var question, answer string
		if err := rows.Scan(&question, &answer); err != nil {
			return "", false, err
		}
		if MatchQuestion(question, query) {
			return answer, true, nil
		}
	}
	return "", false, rows.Err()
}

// ListKnowledge returns up to limit entries in insertion order.
func (s *Store) ListKnowledge(limit int) ([]KnowledgeEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, question, answer, source, created_at
		FROM knowledge ORDER BY rowid ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []KnowledgeEntry
	for rows.Next() {
		var e KnowledgeEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Source, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}

// CountKnowledge returns the number of stored entries.
func (s *Store) CountKnowledge() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM knowledge").Scan(&n)
	return n, err
}

// --- Request ledger ---

// InsertRequest persists a new help request. Returns ErrDuplicateID if the
// identifier already exists.
func (s *Store) InsertRequest(r HelpRequest) error {
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO requests (id, caller_id, question, status, answer, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CallerID, r.Question, string(r.Status), r.Answer,
		r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateID
	}
	return nil
}

// GetRequest returns a help request by ID, or ErrNotFound.
func (s *Store) GetRequest(id string) (HelpRequest, error) {
	row := s.db.QueryRow(`
		SELECT id, caller_id, question, status, answer, created_at, updated_at
		FROM requests WHERE id = ?`, id,
	)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return HelpRequest{}, ErrNotFound
	}
	return r, err
}

// TransitionRequest atomically moves a request from one status to another,
// attaching answer, as a single conditional update. It reports whether a row
// was actually transitioned; a request not currently in the from status (or
// missing entirely) leaves the ledger untouched and returns false. This is
// the guard that lets a supervisor resolve and a timeout sweep race on the
// same request with exactly one winner.
func (s *Store) TransitionRequest(id string, from, to Status, answer string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE requests SET status = ?, answer = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), answer, time.Now().UTC().Format(time.RFC3339), id, string(from),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListRequestsByStatus returns all requests with the given status in
// insertion order. The result is a snapshot of the ledger at call time.
func (s *Store) ListRequestsByStatus(status Status) ([]HelpRequest, error) {
	rows, err := s.db.Query(`
		SELECT id, caller_id, question, status, answer, created_at, updated_at
		FROM requests WHERE status = ? ORDER BY rowid ASC`, string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []HelpRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (HelpRequest, error) {
	var r HelpRequest
	var status, createdAt, updatedAt string
	if err := row.Scan(&r.ID, &r.CallerID, &r.Question, &status, &r.Answer, &createdAt, &updatedAt); err != nil {
		return HelpRequest{}, err
	}
	r.Status = Status(status)

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return HelpRequest{}, fmt.Errorf("parsing created_at: %w", err)
	}
	r.CreatedAt = t

	t, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return HelpRequest{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	r.UpdatedAt = t
	return r, nil
}
