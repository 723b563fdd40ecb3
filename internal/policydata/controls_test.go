package policydata

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadControlsMissingFileIsPermissive(t *testing.T) {
	controls, err := LoadControls(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !controls.System.TradingEnabled {
		t.Fatal("expected trading enabled by default")
	}
	if len(controls.Lists.ChainAllowlist) != 0 {
		t.Fatal("expected empty chain allowlist")
	}
}

func TestLoadControlsParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controls.yaml")
	raw := `
system:
  trading_enabled: true
  maintenance: true
blocklists:
  chain_allowlist: [1, 8453]
  token_blocklist:
    - "1:0xbad0000000000000000000000000000000000bad"
  contract_blocklist:
    - "0xdeadbeef00000000000000000000000000000000"
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	controls, err := LoadControls(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !controls.System.Maintenance {
		t.Fatal("expected maintenance mode set")
	}
	if len(controls.Lists.ChainAllowlist) != 2 || controls.Lists.ChainAllowlist[1] != 8453 {
		t.Fatalf("chain allowlist = %v", controls.Lists.ChainAllowlist)
	}
	if !controls.Lists.ContractBlocked("0xDEADBEEF00000000000000000000000000000000") {
		t.Fatal("expected contract blocked case-insensitively")
	}
}

func TestLoadControlsRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controls.yaml")
	if err := os.WriteFile(path, []byte("system: [not a map"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadControls(path); err == nil {
		t.Fatal("expected parse error")
	}
}
