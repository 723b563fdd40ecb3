package registry

import (
	"math/big"
	"strings"
	"testing"
)

func TestApproveCalldata(t *testing.T) {
	data, err := ApproveCalldata("0x2222222222222222222222222222222222222222", big.NewInt(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(data, "0x095ea7b3") {
		t.Fatalf("expected approve selector, got %s", data[:10])
	}
	// selector + two 32-byte words
	if len(data) != 2+8+64+64 {
		t.Fatalf("unexpected calldata length %d", len(data))
	}
	if !strings.Contains(data, "2222222222222222222222222222222222222222") {
		t.Fatalf("spender missing from calldata: %s", data)
	}
}

func TestApproveCalldataRejectsBadSpender(t *testing.T) {
	if _, err := ApproveCalldata("not-an-address", big.NewInt(1)); err == nil {
		t.Fatal("expected error for invalid spender")
	}
}

func TestResolveRPCURL(t *testing.T) {
	url, err := ResolveRPCURL("", 1)
	if err != nil || url == "" {
		t.Fatalf("expected default mainnet rpc, got %q err=%v", url, err)
	}
	url, err = ResolveRPCURL("http://localhost:8545", 999999)
	if err != nil || url != "http://localhost:8545" {
		t.Fatalf("expected override to win, got %q err=%v", url, err)
	}
	if _, err = ResolveRPCURL("", 999999); err == nil {
		t.Fatal("expected error for unknown chain without override")
	}
}

func TestIsNativeToken(t *testing.T) {
	if !IsNativeToken(NativeTokenAddress) {
		t.Fatal("native pseudo-address not recognized")
	}
	if !IsNativeToken(strings.ToUpper(NativeTokenAddress)) {
		t.Fatal("native check must be case-insensitive")
	}
	if IsNativeToken("0x1111111111111111111111111111111111111111") {
		t.Fatal("regular token flagged as native")
	}
}
