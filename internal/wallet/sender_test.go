package wallet

import (
	"errors"
	"testing"

	clierr "github.com/gustavo/tradeguard/internal/errors"
)

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"1000000000000000000", 1000000000000000000},
		{"0x0", 0},
		{"0xde0b6b3a7640000", 1000000000000000000},
		{"  42  ", 42},
	}
	for _, c := range cases {
		got, err := parseValue(c.in)
		if err != nil {
			t.Fatalf("parseValue(%q): %v", c.in, err)
		}
		if got.Int64() != c.want {
			t.Fatalf("parseValue(%q) = %s, want %d", c.in, got, c.want)
		}
	}
	if _, err := parseValue("not-a-number"); err == nil {
		t.Fatal("expected error for garbage value")
	}
	if _, err := parseValue("0xzz"); err == nil {
		t.Fatal("expected error for bad hex value")
	}
}

func TestDecodeHex(t *testing.T) {
	buf, err := decodeHex("0xdeadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buf) != 4 || buf[0] != 0xde {
		t.Fatalf("unexpected bytes: %x", buf)
	}
	if buf, err = decodeHex(""); err != nil || len(buf) != 0 {
		t.Fatalf("empty input should decode to empty bytes, got %x err=%v", buf, err)
	}
	if buf, err = decodeHex("0x"); err != nil || len(buf) != 0 {
		t.Fatalf("bare prefix should decode to empty bytes, got %x err=%v", buf, err)
	}
	// Odd-length calldata is malformed; padding would shift every byte.
	if _, err = decodeHex("0xf"); err == nil {
		t.Fatal("expected error for odd-length hex")
	}
	if _, err = decodeHex("0xnothex"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestMapSignError(t *testing.T) {
	err := mapSignError(errors.New("User rejected the request"))
	if clierr.CodeOf(err) != clierr.CodeWalletRejected {
		t.Fatalf("expected wallet rejected code, got %d", clierr.CodeOf(err))
	}
	err = mapSignError(errors.New("bad key"))
	if clierr.CodeOf(err) != clierr.CodeValidation {
		t.Fatalf("expected validation code, got %d", clierr.CodeOf(err))
	}
}

func TestRPCSenderWithoutSignerHasNoAddress(t *testing.T) {
	s := NewRPCSender(NewClientPool(nil), nil, nil)
	if s.Address() != "" {
		t.Fatalf("expected empty address, got %s", s.Address())
	}
}
