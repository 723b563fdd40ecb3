package app

import (
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gustavo/tradeguard/internal/config"
	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/httpx"
	"github.com/gustavo/tradeguard/internal/outcome"
	"github.com/gustavo/tradeguard/internal/policydata"
	"github.com/gustavo/tradeguard/internal/quote"
	"github.com/gustavo/tradeguard/internal/wallet"
)

// runtimeState holds per-invocation state and lazily built engine
// components. Stores and clients open on first use so cheap commands
// (version, help) never touch disk or the network.
type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string

	log          *zap.Logger
	quotes       quote.Service
	outcomeStore *outcome.Store
	policyStore  *policydata.PolicyStore
	sessionStore *policydata.SessionStore
	ledger       outcome.SessionLedger
	processed    outcome.ProcessedSet
	redisClient  *redis.Client
	pool         *wallet.ClientPool
}

func (s *runtimeState) logger() *zap.Logger {
	if s.log == nil {
		if s.settings.Verbose {
			cfg := zap.NewDevelopmentConfig()
			cfg.OutputPaths = []string{"stderr"}
			l, err := cfg.Build()
			if err != nil {
				l = zap.NewNop()
			}
			s.log = l
		} else {
			s.log = zap.NewNop()
		}
	}
	return s.log
}

func (s *runtimeState) quoteService() quote.Service {
	if s.quotes == nil {
		client := httpx.New(s.settings.Timeout, s.settings.Retries)
		s.quotes = quote.NewClient(client, s.settings.QuoteBaseURL)
	}
	return s.quotes
}

func (s *runtimeState) openOutcomeStore() (*outcome.Store, error) {
	if s.outcomeStore == nil {
		store, err := outcome.OpenStore(s.settings.OutcomeStorePath, s.settings.OutcomeLockPath)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeStore, "open outcome store", err)
		}
		s.outcomeStore = store
	}
	return s.outcomeStore, nil
}

func (s *runtimeState) openPolicyStore() (*policydata.PolicyStore, error) {
	if s.policyStore == nil {
		store, err := policydata.OpenPolicyStore(s.settings.PolicyStorePath, s.settings.PolicyLockPath)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeStore, "open policy store", err)
		}
		s.policyStore = store
	}
	return s.policyStore, nil
}

func (s *runtimeState) openSessionStore() (*policydata.SessionStore, error) {
	if s.sessionStore == nil {
		store, err := policydata.OpenSessionStore(s.settings.SessionStorePath, s.settings.SessionLockPath)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeStore, "open session store", err)
		}
		s.sessionStore = store
	}
	return s.sessionStore, nil
}

// redisEnabled reports whether shared state (session ledger, processed set)
// runs against Redis or falls back to the in-process implementations.
func (s *runtimeState) redisEnabled() bool {
	return s.settings.RedisAddr != "" && s.settings.RedisAddr != "none"
}

func (s *runtimeState) sessionLedger() (outcome.SessionLedger, error) {
	if s.ledger == nil {
		if s.redisEnabled() {
			ledger, err := outcome.NewRedisLedger(s.settings.RedisAddr, s.settings.RedisPassword, s.settings.RedisDB)
			if err != nil {
				return nil, err
			}
			s.ledger = ledger
		} else {
			s.ledger = outcome.NewMemoryLedger()
		}
	}
	return s.ledger, nil
}

func (s *runtimeState) processedSet() outcome.ProcessedSet {
	if s.processed == nil {
		if s.redisEnabled() {
			if s.redisClient == nil {
				s.redisClient = redis.NewClient(&redis.Options{
					Addr:     s.settings.RedisAddr,
					Password: s.settings.RedisPassword,
					DB:       s.settings.RedisDB,
				})
			}
			s.processed = outcome.NewRedisProcessedSet(s.redisClient)
		} else {
			s.processed = outcome.NewMemoryProcessedSet()
		}
	}
	return s.processed
}

func (s *runtimeState) recorder() (*outcome.Recorder, error) {
	store, err := s.openOutcomeStore()
	if err != nil {
		return nil, err
	}
	ledger, err := s.sessionLedger()
	if err != nil {
		return nil, err
	}
	return outcome.NewRecorder(store, ledger, s.logger()), nil
}

func (s *runtimeState) clientPool() *wallet.ClientPool {
	if s.pool == nil {
		s.pool = wallet.NewClientPool(s.settings.RPCOverrides)
	}
	return s.pool
}

func (s *runtimeState) close() {
	if s.outcomeStore != nil {
		_ = s.outcomeStore.Close()
	}
	if s.policyStore != nil {
		_ = s.policyStore.Close()
	}
	if s.sessionStore != nil {
		_ = s.sessionStore.Close()
	}
	if rl, ok := s.ledger.(*outcome.RedisLedger); ok {
		_ = rl.Close()
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.log != nil {
		_ = s.log.Sync()
	}
}
