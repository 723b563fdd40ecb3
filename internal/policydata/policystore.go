package policydata

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
	_ "modernc.org/sqlite"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/policy"
)

// PolicyStore persists per-wallet risk-policy configuration in SQLite.
// A wallet's config materializes with defaults on first access and is only
// ever reset, never deleted.
type PolicyStore struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenPolicyStore(path, lockPath string) (*PolicyStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create policy store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create policy lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open policy sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS risk_policies (
			wallet TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init policy schema: %w", err)
		}
	}
	return &PolicyStore{db: db, lock: flock.New(lockPath)}, nil
}

func (s *PolicyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the wallet's risk policy, materializing defaults the first
// time a wallet is seen.
func (s *PolicyStore) Get(wallet string) (policy.RiskPolicyConfig, error) {
	wallet = normalizeWallet(wallet)
	if wallet == "" {
		return policy.RiskPolicyConfig{}, clierr.New(clierr.CodeValidation, "risk policy lookup requires a wallet address")
	}

	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM risk_policies WHERE wallet = ?", wallet).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		cfg := policy.DefaultRiskPolicy()
		if err := s.Save(wallet, cfg); err != nil {
			return policy.RiskPolicyConfig{}, err
		}
		return cfg, nil
	}
	if err != nil {
		return policy.RiskPolicyConfig{}, clierr.Wrap(clierr.CodeStore, "read risk policy", err)
	}

	var cfg policy.RiskPolicyConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return policy.RiskPolicyConfig{}, clierr.Wrap(clierr.CodeStore, "decode risk policy", err)
	}
	return cfg, nil
}

func (s *PolicyStore) Save(wallet string, cfg policy.RiskPolicyConfig) error {
	wallet = normalizeWallet(wallet)
	if wallet == "" {
		return clierr.New(clierr.CodeValidation, "risk policy save requires a wallet address")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return clierr.Wrap(clierr.CodeStore, "lock policy store", err)
	}
	if !locked {
		return clierr.New(clierr.CodeStore, "lock policy store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(cfg)
	if err != nil {
		return clierr.Wrap(clierr.CodeStore, "marshal risk policy", err)
	}
	now := time.Now().UTC().Unix()
	_, err = s.db.Exec(`
		INSERT INTO risk_policies (wallet, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(wallet) DO UPDATE SET updated_at=excluded.updated_at, payload=excluded.payload
	`, wallet, now, now, payload)
	if err != nil {
		return clierr.Wrap(clierr.CodeStore, "save risk policy", err)
	}
	return nil
}

// ApplyPreset replaces the wallet's config with a named preset.
func (s *PolicyStore) ApplyPreset(wallet, preset string) (policy.RiskPolicyConfig, error) {
	cfg, err := policy.Preset(preset)
	if err != nil {
		return policy.RiskPolicyConfig{}, err
	}
	if err := s.Save(wallet, cfg); err != nil {
		return policy.RiskPolicyConfig{}, err
	}
	return cfg, nil
}

// Reset restores the wallet's config to defaults.
func (s *PolicyStore) Reset(wallet string) (policy.RiskPolicyConfig, error) {
	cfg := policy.DefaultRiskPolicy()
	if err := s.Save(wallet, cfg); err != nil {
		return policy.RiskPolicyConfig{}, err
	}
	return cfg, nil
}

func normalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}
