package quote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/httpx"
)

func newTestHTTPClient() *httpx.Client {
	return httpx.New(2*time.Second, 0)
}

func newQuoteServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func swapReq() SwapRequest {
	return SwapRequest{
		ChainID:     1,
		FromToken:   "0x00000000000000000000000000000000000000a1",
		ToToken:     "0x00000000000000000000000000000000000000b2",
		AmountUSD:   decimal.NewFromInt(100),
		SlippageBps: 50,
		Wallet:      "0x00000000000000000000000000000000000000cc",
	}
}

func TestSwapQuoteMapsTransactionAndApproval(t *testing.T) {
	server := newQuoteServer(t, `{
		"estimate": {"toAmountUSD": "99.4", "approvalAddress": "0x0000000000000000000000000000000000000abc"},
		"transactionRequest": {"to": "0x0000000000000000000000000000000000000def", "data": "0xdeadbeef", "value": "0", "chainId": 1},
		"warnings": [{"message": "low liquidity route"}]
	}`)
	defer server.Close()

	c := NewClient(newTestHTTPClient(), server.URL)
	q, err := c.Swap(context.Background(), swapReq())
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if q.TxRequest.To != "0x0000000000000000000000000000000000000def" || q.TxRequest.Data != "0xdeadbeef" {
		t.Fatalf("unexpected tx request: %+v", q.TxRequest)
	}
	if !q.NeedsApproval {
		t.Fatal("expected NeedsApproval for non-native from token with approval address")
	}
	if len(q.Warnings) != 1 || q.Warnings[0] != "low liquidity route" {
		t.Fatalf("warnings not propagated: %+v", q.Warnings)
	}
	if q.EstimatedOut.String() != "99.4" {
		t.Fatalf("unexpected estimated out: %s", q.EstimatedOut)
	}
}

func TestSwapQuoteNativeTokenNeedsNoApproval(t *testing.T) {
	server := newQuoteServer(t, `{
		"estimate": {"approvalAddress": "0x0000000000000000000000000000000000000abc"},
		"transactionRequest": {"to": "0x0000000000000000000000000000000000000def", "data": "0xdeadbeef", "value": "5", "chainId": 1}
	}`)
	defer server.Close()

	req := swapReq()
	req.FromToken = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

	c := NewClient(newTestHTTPClient(), server.URL)
	q, err := c.Swap(context.Background(), req)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if q.NeedsApproval {
		t.Fatal("native from token must not need approval")
	}
}

func TestSwapQuoteEmptyTransactionDataFails(t *testing.T) {
	server := newQuoteServer(t, `{"message": "no route found", "transactionRequest": {"to": "", "data": "0x"}}`)
	defer server.Close()

	c := NewClient(newTestHTTPClient(), server.URL)
	_, err := c.Swap(context.Background(), swapReq())
	if err == nil {
		t.Fatal("expected error for empty transaction data")
	}
	typed, ok := clierr.As(err)
	if !ok || typed.Code != clierr.CodeQuote {
		t.Fatalf("expected quote error code, got %v", err)
	}
	if !typed.Recoverable {
		t.Fatal("quote failures must be recoverable")
	}
}

func TestSwapQuoteRejectsNonPositiveAmount(t *testing.T) {
	c := NewClient(newTestHTTPClient(), "http://unused.invalid")
	_, err := c.Swap(context.Background(), SwapRequest{ChainID: 1, FromToken: "0xa", ToToken: "0xb"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if typed, ok := clierr.As(err); !ok || typed.Code != clierr.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
}
