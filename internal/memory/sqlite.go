package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// StoreConfig holds configuration for the SQLite memory store.
type StoreConfig struct {
	// Path is the database file location.
	// Default: "~/.config/notebookd/memory.db"
	Path string `koanf:"path"`

	// MaxRecallTurns bounds how many turns Recall considers.
	// Default: 20
	MaxRecallTurns int `koanf:"max_recall_turns"`

	// MaxRecallBytes bounds the rendered recall block. Oldest turns are
	// trimmed first.
	// Default: 4096
	MaxRecallBytes int `koanf:"max_recall_bytes"`
}

// ApplyDefaults sets default values for unset fields.
func (c *StoreConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/notebookd/memory.db"
	}
	if c.MaxRecallTurns == 0 {
		c.MaxRecallTurns = 20
	}
	if c.MaxRecallBytes == 0 {
		c.MaxRecallBytes = 4096
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner TEXT NOT NULL,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	citations TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_owner_session ON turns(owner, session_id, id);
`

// Store is a SQLite-backed Adapter.
//
// WAL mode keeps concurrent readers off the writer's back; busy_timeout
// covers the brief write lock during checkpoints.
type Store struct {
	db     *sql.DB
	config StoreConfig
	logger *zap.Logger
}

// timeNow is overridable in tests.
var timeNow = time.Now

// NewStore opens (creating if needed) the SQLite database at cfg.Path.
func NewStore(cfg StoreConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	path := cfg.Path
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrUnavailable, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: applying schema: %v", ErrUnavailable, err)
	}

	logger.Info("memory store initialized", zap.String("path", path))

	return &Store{db: db, config: cfg, logger: logger}, nil
}

// Remember inserts a turn. The insert is synchronous; durability is
// SQLite's WAL fsync.
func (s *Store) Remember(ctx context.Context, turn Turn) error {
	if turn.Owner == "" || turn.SessionID == "" {
		return fmt.Errorf("owner and session required")
	}
	if turn.Role != RoleUser && turn.Role != RoleAssistant {
		return fmt.Errorf("invalid role %q", turn.Role)
	}

	citations := turn.Citations
	if citations == nil {
		citations = []string{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("encoding citations: %w", err)
	}

	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = timeNow().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (owner, session_id, role, content, citations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		turn.Owner, turn.SessionID, string(turn.Role), turn.Text, string(citationsJSON), createdAt,
	)
	if err != nil {
		return fmt.Errorf("%w: inserting turn: %v", ErrUnavailable, err)
	}
	return nil
}

// Recall renders the session's recent turns oldest-first as a prompt
// block. When the block exceeds the byte budget the oldest turns are
// dropped first; recency matters more than completeness here.
func (s *Store) Recall(ctx context.Context, owner, sessionID string) (string, error) {
	turns, err := s.recent(ctx, owner, sessionID, s.config.MaxRecallTurns)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", nil
	}

	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = fmt.Sprintf("%s: %s", t.Role, t.Text)
	}

	// Drop from the front until the block fits.
	start := 0
	total := 0
	for i := len(lines) - 1; i >= 0; i-- {
		total += len(lines[i]) + 1
		if total > s.config.MaxRecallBytes {
			start = i + 1
			break
		}
	}
	if start >= len(lines) {
		return "", nil
	}
	return strings.Join(lines[start:], "\n"), nil
}

// recent returns up to limit turns of a session, oldest first.
func (s *Store) recent(ctx context.Context, owner, sessionID string, limit int) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, owner, role, content, citations, created_at
		 FROM turns
		 WHERE owner = ? AND session_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		owner, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying turns: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var role, citationsJSON string
		if err := rows.Scan(&t.SessionID, &t.Owner, &role, &t.Text, &citationsJSON, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning turn: %v", ErrUnavailable, err)
		}
		t.Role = Role(role)
		if err := json.Unmarshal([]byte(citationsJSON), &t.Citations); err != nil {
			s.logger.Warn("dropping unreadable citations", zap.Error(err))
			t.Citations = nil
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading turns: %v", ErrUnavailable, err)
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// History returns the full transcript of a session, oldest first.
func (s *Store) History(ctx context.Context, owner, sessionID string) ([]Turn, error) {
	const allTurns = 1 << 20
	return s.recent(ctx, owner, sessionID, allTurns)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ Adapter = (*Store)(nil)
