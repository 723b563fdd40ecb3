package policydata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/outcome"
	"github.com/gustavo/tradeguard/internal/policy"
)

// SessionStore persists session-key grants in SQLite. Budget usage lives in
// the backend ledger, not here; readers merge it in through a Provider.
type SessionStore struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenSessionStore(path, lockPath string) (*SessionStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create session lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			wallet TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_sessions_wallet_created ON sessions(wallet, created_at ASC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init session schema: %w", err)
		}
	}
	return &SessionStore{db: db, lock: flock.New(lockPath)}, nil
}

func (s *SessionStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create stores a new grant. A missing ID is generated; a zero creation time
// is stamped now.
func (s *SessionStore) Create(session policy.SessionKeyData) (policy.SessionKeyData, error) {
	if normalizeWallet(session.Wallet) == "" {
		return policy.SessionKeyData{}, clierr.New(clierr.CodeValidation, "session requires a wallet address")
	}
	if session.ExpiresAt.IsZero() {
		return policy.SessionKeyData{}, clierr.New(clierr.CodeValidation, "session requires an expiry")
	}
	if len(session.Permissions) == 0 {
		return policy.SessionKeyData{}, clierr.New(clierr.CodeValidation, "session requires at least one permitted intent type")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	session.Wallet = normalizeWallet(session.Wallet)
	session.Status = policy.SessionActive

	if err := s.save(session); err != nil {
		return policy.SessionKeyData{}, err
	}
	return session, nil
}

// Revoke marks the grant revoked. Revocation is permanent.
func (s *SessionStore) Revoke(id string) error {
	session, err := s.Get(id)
	if err != nil {
		return err
	}
	session.Status = policy.SessionRevoked
	return s.save(session)
}

func (s *SessionStore) Get(id string) (policy.SessionKeyData, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM sessions WHERE id = ?", id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return policy.SessionKeyData{}, clierr.New(clierr.CodeStore, "session not found: "+id)
		}
		return policy.SessionKeyData{}, clierr.Wrap(clierr.CodeStore, "read session", err)
	}
	var session policy.SessionKeyData
	if err := json.Unmarshal(payload, &session); err != nil {
		return policy.SessionKeyData{}, clierr.Wrap(clierr.CodeStore, "decode session", err)
	}
	return session, nil
}

// ListByWallet returns the wallet's grants in creation order. Creation order
// is what makes first-match active-session selection deterministic.
func (s *SessionStore) ListByWallet(wallet string) ([]policy.SessionKeyData, error) {
	rows, err := s.db.Query(
		"SELECT payload FROM sessions WHERE wallet = ? ORDER BY created_at ASC, id ASC",
		normalizeWallet(wallet))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeStore, "list sessions", err)
	}
	defer rows.Close()

	sessions := make([]policy.SessionKeyData, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, clierr.Wrap(clierr.CodeStore, "scan session row", err)
		}
		var session policy.SessionKeyData
		if err := json.Unmarshal(payload, &session); err != nil {
			return nil, clierr.Wrap(clierr.CodeStore, "decode session row", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, clierr.Wrap(clierr.CodeStore, "iterate session rows", err)
	}
	return sessions, nil
}

func (s *SessionStore) save(session policy.SessionKeyData) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return clierr.Wrap(clierr.CodeStore, "lock session store", err)
	}
	if !locked {
		return clierr.New(clierr.CodeStore, "lock session store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(session)
	if err != nil {
		return clierr.Wrap(clierr.CodeStore, "marshal session", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, wallet, status, created_at, expires_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, payload=excluded.payload
	`, session.ID, session.Wallet, session.Status, session.CreatedAt.Unix(), session.ExpiresAt.Unix(), payload)
	if err != nil {
		return clierr.Wrap(clierr.CodeStore, "save session", err)
	}
	return nil
}

// SessionProvider resolves a wallet's sessions for evaluation: grants from
// the store, usage from the backend ledger, and lifecycle status derived on
// read. Stored status is never rewritten by reads.
type SessionProvider struct {
	store  *SessionStore
	ledger outcome.SessionLedger
}

func NewSessionProvider(store *SessionStore, ledger outcome.SessionLedger) *SessionProvider {
	return &SessionProvider{store: store, ledger: ledger}
}

// Resolve returns the wallet's sessions with live usage and derived status.
func (p *SessionProvider) Resolve(ctx context.Context, wallet string, now time.Time) ([]policy.SessionKeyData, error) {
	sessions, err := p.store.ListByWallet(wallet)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		s := &sessions[i]
		if p.ledger != nil {
			used, err := p.ledger.Usage(ctx, s.ID)
			if err != nil {
				return nil, err
			}
			s.TotalValueUsedUSD = used
		}
		if s.Status != policy.SessionActive {
			continue
		}
		switch {
		case !s.ExpiresAt.After(now):
			s.Status = policy.SessionExpired
		case s.MaxTotalValueUSD.IsPositive() && s.TotalValueUsedUSD.GreaterThanOrEqual(s.MaxTotalValueUSD):
			s.Status = policy.SessionExhausted
		}
	}
	return sessions, nil
}
