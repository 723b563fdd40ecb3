package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GlobalFlags are the root command-line flags. Precedence: flags over
// environment over config file over defaults.
type GlobalFlags struct {
	ConfigPath   string
	JSON         bool
	Plain        bool
	Wallet       string
	Timeout      string
	Retries      int
	RedisAddr    string
	QuoteBaseURL string
	Verbose      bool
}

type Settings struct {
	OutputMode string
	Wallet     string
	Timeout    time.Duration
	Retries    int
	Verbose    bool

	QuoteBaseURL string
	RPCOverrides map[int64]string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OutcomeStorePath string
	OutcomeLockPath  string
	PolicyStorePath  string
	PolicyLockPath   string
	SessionStorePath string
	SessionLockPath  string
	ControlsPath     string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Wallet  string `yaml:"wallet"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Verbose *bool  `yaml:"verbose"`
	Quote   struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"quote"`
	RPC struct {
		Overrides map[int64]string `yaml:"overrides"`
	} `yaml:"rpc"`
	Redis struct {
		Addr        string `yaml:"addr"`
		Password    string `yaml:"password"`
		PasswordEnv string `yaml:"password_env"`
		DB          *int   `yaml:"db"`
	} `yaml:"redis"`
	Stores struct {
		OutcomesPath string `yaml:"outcomes_path"`
		PoliciesPath string `yaml:"policies_path"`
		SessionsPath string `yaml:"sessions_path"`
	} `yaml:"stores"`
	ControlsPath string `yaml:"controls_path"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:   "json",
		Timeout:      15 * time.Second,
		Retries:      2,
		QuoteBaseURL: "https://li.quest/v1",
		RPCOverrides: map[int64]string{},
		RedisAddr:    "localhost:6379",

		OutcomeStorePath: filepath.Join(dataDir, "outcomes.db"),
		OutcomeLockPath:  filepath.Join(dataDir, "outcomes.lock"),
		PolicyStorePath:  filepath.Join(dataDir, "policies.db"),
		PolicyLockPath:   filepath.Join(dataDir, "policies.lock"),
		SessionStorePath: filepath.Join(dataDir, "sessions.db"),
		SessionLockPath:  filepath.Join(dataDir, "sessions.lock"),
		ControlsPath:     filepath.Join(dataDir, "controls.yaml"),
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "tradeguard", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "tradeguard"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Wallet != "" {
		settings.Wallet = cfg.Wallet
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Verbose != nil {
		settings.Verbose = *cfg.Verbose
	}
	if cfg.Quote.BaseURL != "" {
		settings.QuoteBaseURL = cfg.Quote.BaseURL
	}
	for chainID, url := range cfg.RPC.Overrides {
		settings.RPCOverrides[chainID] = url
	}
	if cfg.Redis.Addr != "" {
		settings.RedisAddr = cfg.Redis.Addr
	}
	if cfg.Redis.Password != "" {
		settings.RedisPassword = cfg.Redis.Password
	}
	if cfg.Redis.PasswordEnv != "" {
		settings.RedisPassword = os.Getenv(cfg.Redis.PasswordEnv)
	}
	if cfg.Redis.DB != nil {
		settings.RedisDB = *cfg.Redis.DB
	}
	if cfg.Stores.OutcomesPath != "" {
		settings.OutcomeStorePath = cfg.Stores.OutcomesPath
		settings.OutcomeLockPath = lockPathFor(cfg.Stores.OutcomesPath)
	}
	if cfg.Stores.PoliciesPath != "" {
		settings.PolicyStorePath = cfg.Stores.PoliciesPath
		settings.PolicyLockPath = lockPathFor(cfg.Stores.PoliciesPath)
	}
	if cfg.Stores.SessionsPath != "" {
		settings.SessionStorePath = cfg.Stores.SessionsPath
		settings.SessionLockPath = lockPathFor(cfg.Stores.SessionsPath)
	}
	if cfg.ControlsPath != "" {
		settings.ControlsPath = cfg.ControlsPath
	}
	return nil
}

func lockPathFor(dbPath string) string {
	return strings.TrimSuffix(dbPath, filepath.Ext(dbPath)) + ".lock"
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("TRADEGUARD_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("TRADEGUARD_WALLET"); v != "" {
		settings.Wallet = v
	}
	if v := os.Getenv("TRADEGUARD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("TRADEGUARD_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("TRADEGUARD_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.Verbose = b
		}
	}
	if v := os.Getenv("TRADEGUARD_QUOTE_BASE_URL"); v != "" {
		settings.QuoteBaseURL = v
	}
	if v := os.Getenv("TRADEGUARD_REDIS_ADDR"); v != "" {
		settings.RedisAddr = v
	}
	if v := os.Getenv("TRADEGUARD_REDIS_PASSWORD"); v != "" {
		settings.RedisPassword = v
	}
	if v := os.Getenv("TRADEGUARD_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.RedisDB = n
		}
	}
	if v := os.Getenv("TRADEGUARD_OUTCOMES_PATH"); v != "" {
		settings.OutcomeStorePath = v
		settings.OutcomeLockPath = lockPathFor(v)
	}
	if v := os.Getenv("TRADEGUARD_POLICIES_PATH"); v != "" {
		settings.PolicyStorePath = v
		settings.PolicyLockPath = lockPathFor(v)
	}
	if v := os.Getenv("TRADEGUARD_SESSIONS_PATH"); v != "" {
		settings.SessionStorePath = v
		settings.SessionLockPath = lockPathFor(v)
	}
	if v := os.Getenv("TRADEGUARD_CONTROLS_PATH"); v != "" {
		settings.ControlsPath = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Wallet) != "" {
		settings.Wallet = flags.Wallet
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if strings.TrimSpace(flags.RedisAddr) != "" {
		settings.RedisAddr = flags.RedisAddr
	}
	if strings.TrimSpace(flags.QuoteBaseURL) != "" {
		settings.QuoteBaseURL = flags.QuoteBaseURL
	}
	if flags.Verbose {
		settings.Verbose = true
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}
