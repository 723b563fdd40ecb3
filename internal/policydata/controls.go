package policydata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gustavo/tradeguard/internal/policy"
)

// Controls bundles the platform-wide switches and restrictions loaded from
// the controls file.
type Controls struct {
	System policy.SystemStatus `yaml:"system"`
	Lists  policy.Blocklists   `yaml:"blocklists"`
	// CommandAllowlist restricts which CLI commands may run at all. Empty
	// permits everything.
	CommandAllowlist []string `yaml:"command_allowlist"`
}

// DefaultControls is the permissive state used when no controls file exists:
// trading enabled, nothing restricted.
func DefaultControls() Controls {
	return Controls{
		System: policy.SystemStatus{TradingEnabled: true},
	}
}

// LoadControls reads the YAML controls file. A missing file yields
// DefaultControls; a malformed one is an error, not a silent fallback.
func LoadControls(path string) (Controls, error) {
	if path == "" {
		return DefaultControls(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultControls(), nil
		}
		return Controls{}, fmt.Errorf("read controls file: %w", err)
	}
	controls := DefaultControls()
	if err := yaml.Unmarshal(raw, &controls); err != nil {
		return Controls{}, fmt.Errorf("parse controls file %s: %w", path, err)
	}
	return controls, nil
}
