package quote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/httpx"
	"github.com/gustavo/tradeguard/internal/registry"
)

// Client queries a LiFi-compatible routing API for swap quotes.
type Client struct {
	http    *httpx.Client
	baseURL string
}

func NewClient(httpClient *httpx.Client, baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = registry.DefaultQuoteBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type quoteResponse struct {
	Estimate struct {
		FromAmount      string `json:"fromAmount"`
		ToAmount        string `json:"toAmount"`
		ToAmountUSD     string `json:"toAmountUSD"`
		ApprovalAddress string `json:"approvalAddress"`
		GasCosts        []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"gasCosts"`
	} `json:"estimate"`
	ApprovalTransactionRequest *struct {
		To      string `json:"to"`
		Data    string `json:"data"`
		Value   string `json:"value"`
		ChainID int64  `json:"chainId"`
	} `json:"approvalTransactionRequest"`
	TransactionRequest struct {
		To      string `json:"to"`
		Data    string `json:"data"`
		Value   string `json:"value"`
		ChainID int64  `json:"chainId"`
	} `json:"transactionRequest"`
	Warnings []struct {
		Message string `json:"message"`
	} `json:"warnings"`
	Message string `json:"message"`
}

func (c *Client) Swap(ctx context.Context, req SwapRequest) (Quote, error) {
	if !req.AmountUSD.IsPositive() {
		return Quote{}, clierr.New(clierr.CodeValidation, "swap quote requires a positive USD amount")
	}
	if strings.TrimSpace(req.FromToken) == "" || strings.TrimSpace(req.ToToken) == "" {
		return Quote{}, clierr.New(clierr.CodeValidation, "swap quote requires from and to token addresses")
	}

	vals := url.Values{}
	vals.Set("fromChain", strconv.FormatInt(req.ChainID, 10))
	vals.Set("toChain", strconv.FormatInt(req.ChainID, 10))
	vals.Set("fromToken", req.FromToken)
	vals.Set("toToken", req.ToToken)
	vals.Set("fromAmountUSD", req.AmountUSD.String())
	if req.SlippageBps > 0 {
		slippage := decimal.NewFromInt(req.SlippageBps).Div(decimal.NewFromInt(10_000))
		vals.Set("slippage", slippage.String())
	}
	if strings.TrimSpace(req.Wallet) != "" {
		vals.Set("fromAddress", strings.TrimSpace(req.Wallet))
	}

	endpoint := c.baseURL + "/quote?" + vals.Encode()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeInternal, "build quote request", err)
	}
	var resp quoteResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return Quote{}, err
	}
	return mapQuote(req, resp)
}

func mapQuote(req SwapRequest, resp quoteResponse) (Quote, error) {
	tx := TxRequest{
		To:      resp.TransactionRequest.To,
		Data:    resp.TransactionRequest.Data,
		Value:   resp.TransactionRequest.Value,
		ChainID: resp.TransactionRequest.ChainID,
	}
	if tx.Empty() {
		msg := "quote response carried no transaction data"
		if strings.TrimSpace(resp.Message) != "" {
			msg = fmt.Sprintf("%s: %s", msg, resp.Message)
		}
		return Quote{}, clierr.New(clierr.CodeQuote, msg)
	}
	if tx.ChainID == 0 {
		tx.ChainID = req.ChainID
	}
	if tx.Value == "" {
		tx.Value = "0"
	}

	out := Quote{
		TxRequest:       tx,
		ApprovalAddress: strings.TrimSpace(resp.Estimate.ApprovalAddress),
		FromAmount:      strings.TrimSpace(resp.Estimate.FromAmount),
	}
	out.NeedsApproval = out.ApprovalAddress != "" && !registry.IsNativeToken(req.FromToken)
	if a := resp.ApprovalTransactionRequest; a != nil && a.Data != "" && a.Data != "0x" {
		approval := TxRequest{To: a.To, Data: a.Data, Value: a.Value, ChainID: a.ChainID}
		if approval.ChainID == 0 {
			approval.ChainID = req.ChainID
		}
		if approval.Value == "" {
			approval.Value = "0"
		}
		out.ApprovalTx = &approval
	}

	if v := strings.TrimSpace(resp.Estimate.ToAmountUSD); v != "" {
		if est, err := decimal.NewFromString(v); err == nil {
			out.EstimatedOut = est
		}
	}
	for _, w := range resp.Warnings {
		if strings.TrimSpace(w.Message) != "" {
			out.Warnings = append(out.Warnings, w.Message)
		}
	}
	return out, nil
}
