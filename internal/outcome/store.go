package outcome

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	clierr "github.com/gustavo/tradeguard/internal/errors"
)

// Store persists execution outcomes in SQLite, one row per execution ID.
// Concurrent engine processes coordinate through a file lock.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create outcome store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create outcome lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open outcome sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS outcomes (
			execution_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_outcomes_status_updated ON outcomes(status, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init outcome schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(record Record) error {
	if strings.TrimSpace(record.ExecutionID) == "" {
		return clierr.New(clierr.CodeStore, "save outcome: missing execution id")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return clierr.Wrap(clierr.CodeStore, "lock outcome store", err)
	}
	if !locked {
		return clierr.New(clierr.CodeStore, "lock outcome store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	payload, err := json.Marshal(record)
	if err != nil {
		return clierr.Wrap(clierr.CodeStore, "marshal outcome", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO outcomes (execution_id, status, session_id, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET
			status=excluded.status,
			session_id=excluded.session_id,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, record.ExecutionID, record.Status, record.SessionID, record.CreatedAt.Unix(), record.UpdatedAt.Unix(), payload)
	if err != nil {
		return clierr.Wrap(clierr.CodeStore, "save outcome", err)
	}
	return nil
}

func (s *Store) Get(executionID string) (Record, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM outcomes WHERE execution_id = ?", executionID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, clierr.New(clierr.CodeStore, "outcome not found: "+executionID)
		}
		return Record{}, clierr.Wrap(clierr.CodeStore, "read outcome", err)
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return Record{}, clierr.Wrap(clierr.CodeStore, "decode outcome payload", err)
	}
	return record, nil
}

// CompletedVolumeSince sums the USD amount of completed executions updated
// at or after since. Feeds the advisory daily-volume check.
func (s *Store) CompletedVolumeSince(since time.Time) (decimal.Decimal, error) {
	rows, err := s.db.Query(
		"SELECT payload FROM outcomes WHERE status = ? AND updated_at >= ?",
		RecordCompleted, since.Unix())
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeStore, "query completed volume", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return decimal.Zero, clierr.Wrap(clierr.CodeStore, "scan completed row", err)
		}
		var record Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return decimal.Zero, clierr.Wrap(clierr.CodeStore, "decode completed row", err)
		}
		total = total.Add(record.AmountUSD)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeStore, "iterate completed rows", err)
	}
	return total, nil
}

func (s *Store) List(status RecordStatus, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.Query("SELECT payload FROM outcomes ORDER BY updated_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM outcomes WHERE status = ? ORDER BY updated_at DESC LIMIT ?", status, limit)
	}
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeStore, "list outcomes", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, clierr.Wrap(clierr.CodeStore, "scan outcome row", err)
		}
		var record Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, clierr.Wrap(clierr.CodeStore, "decode outcome row", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, clierr.Wrap(clierr.CodeStore, "iterate outcome rows", err)
	}
	return records, nil
}
