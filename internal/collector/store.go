package collector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Kind is the collector endpoint a record arrived on.
type Kind string

const (
	KindEvent    Kind = "event"
	KindSignal   Kind = "signal"
	KindIdentify Kind = "identify"
)

// StoredRecord is one received record.
type StoredRecord struct {
	ID         int64           `json:"id"`
	Kind       Kind            `json:"kind"`
	EventID    string          `json:"event_id,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	Body       json.RawMessage `json:"body"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Store keeps received records in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			event_id TEXT,
			user_id TEXT,
			body TEXT NOT NULL,
			received_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_records_event ON records(event_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save stores one record. event_id and user_id are indexed when the body
// carries them.
func (s *Store) Save(ctx context.Context, kind Kind, body json.RawMessage) error {
	var keys struct {
		EventID string `json:"event_id"`
		UserID  string `json:"user_id"`
	}
	if err := json.Unmarshal(body, &keys); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (kind, event_id, user_id, body, received_at) VALUES (?, ?, ?, ?, ?)`,
		string(kind), keys.EventID, keys.UserID, string(body), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// List returns up to limit records of kind, newest first. An empty kind
// lists every kind.
func (s *Store) List(ctx context.Context, kind Kind, limit int) ([]StoredRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, kind, event_id, user_id, body, received_at FROM records`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var (
			rec           StoredRecord
			kindStr, body string
			eventID, user sql.NullString
		)
		if err := rows.Scan(&rec.ID, &kindStr, &eventID, &user, &body, &rec.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Kind = Kind(kindStr)
		rec.EventID = eventID.String
		rec.UserID = user.String
		rec.Body = json.RawMessage(body)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of records of kind, or of all kinds when empty.
func (s *Store) Count(ctx context.Context, kind Kind) (int, error) {
	query := `SELECT COUNT(*) FROM records`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
