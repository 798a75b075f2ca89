package collector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// ErrInvalidHit is returned when a hit has no action.
var ErrInvalidHit = errors.New("invalid hit")

// Hit is one event request received by the collector.
type Hit struct {
	ID        int64  `json:"id"`
	Action    string `json:"action"`
	Transport string `json:"transport"` // image|beacon, derived from the HTTP method
	PID       string `json:"pid,omitempty"`
	CID       string `json:"cid,omitempty"`
	UUID      string `json:"uuid,omitempty"`
	CRE       string `json:"cre,omitempty"`
	TS        int64  `json:"ts"`
	// ReceivedAt is Unix milliseconds on the collector clock.
	ReceivedAt int64 `json:"received_at"`
}

// Store persists hits in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating when needed) the SQLite database at path.
func OpenStore(path string) (*Store, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS hits(
	  id          INTEGER PRIMARY KEY,
	  action      TEXT    NOT NULL,
	  transport   TEXT    NOT NULL,
	  pid         TEXT    NOT NULL DEFAULT '',
	  cid         TEXT    NOT NULL DEFAULT '',
	  uuid        TEXT    NOT NULL DEFAULT '',
	  cre         TEXT    NOT NULL DEFAULT '',
	  ts          INTEGER NOT NULL,
	  received_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_hits_action ON hits(action);
	CREATE INDEX IF NOT EXISTS idx_hits_uuid   ON hits(uuid);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertHit stores h and returns its id.
func (s *Store) InsertHit(ctx context.Context, h Hit) (int64, error) {
	if h.Action == "" {
		return 0, fmt.Errorf("%w: action cannot be empty", ErrInvalidHit)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO hits(action, transport, pid, cid, uuid, cre, ts, received_at) VALUES(?,?,?,?,?,?,?,?)`,
		h.Action, h.Transport, h.PID, h.CID, h.UUID, h.CRE, h.TS, h.ReceivedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert hit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read hit id: %w", err)
	}
	return id, nil
}

// ListHits returns stored hits in insertion order, filtered by action when
// action is non-empty.
func (s *Store) ListHits(ctx context.Context, action string) ([]Hit, error) {
	query := `SELECT id, action, transport, pid, cid, uuid, cre, ts, received_at FROM hits`
	var args []any
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hits: %w", err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Action, &h.Transport, &h.PID, &h.CID, &h.UUID, &h.CRE, &h.TS, &h.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hits: %w", err)
	}
	return hits, nil
}
