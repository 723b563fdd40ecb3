package planner

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/gustavo/tradeguard/internal/errors"
)

// TradeConfig is the normalized strategy configuration the planner works
// with, regardless of which producer shape it arrived in.
type TradeConfig struct {
	FromToken string
	ToToken   string
	ChainID   int64
	AmountUSD decimal.Decimal
}

// ParseTradeConfig adapts the heterogeneous strategy config shapes into
// one. Producers disagree: newer ones send structured token objects
// ({"fromToken":{"address":...,"chainId":...}}), older ones flat snake_case
// strings ({"from_token":"0x..","chain_id":1}). Shapes are tried in that
// fixed priority order; it errors only when neither matches. All shape
// knowledge lives here, never at call sites.
func ParseTradeConfig(config map[string]any) (TradeConfig, error) {
	if cfg, ok := structuredShape(config); ok {
		return cfg, nil
	}
	if cfg, ok := legacyFlatShape(config); ok {
		return cfg, nil
	}
	return TradeConfig{}, clierr.New(clierr.CodeValidation,
		"strategy config is missing token configuration (no recognized shape)")
}

func structuredShape(config map[string]any) (TradeConfig, bool) {
	from, okFrom := tokenObject(config["fromToken"])
	to, okTo := tokenObject(config["toToken"])
	amount, okAmount := decimalValue(config["amountUsd"])
	if !okFrom || !okTo || !okAmount {
		return TradeConfig{}, false
	}
	chainID := from.chainID
	if chainID == 0 {
		chainID, _ = intValue(config["chainId"])
	}
	return TradeConfig{
		FromToken: from.address,
		ToToken:   to.address,
		ChainID:   chainID,
		AmountUSD: amount,
	}, true
}

func legacyFlatShape(config map[string]any) (TradeConfig, bool) {
	from, okFrom := stringValue(config["from_token"])
	to, okTo := stringValue(config["to_token"])
	amount, okAmount := decimalValue(config["amount_usd"])
	if !okFrom || !okTo || !okAmount {
		return TradeConfig{}, false
	}
	chainID, _ := intValue(config["chain_id"])
	return TradeConfig{
		FromToken: from,
		ToToken:   to,
		ChainID:   chainID,
		AmountUSD: amount,
	}, true
}

type tokenRef struct {
	address string
	chainID int64
}

func tokenObject(v any) (tokenRef, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return tokenRef{}, false
	}
	address, ok := stringValue(obj["address"])
	if !ok {
		return tokenRef{}, false
	}
	chainID, _ := intValue(obj["chainId"])
	return tokenRef{address: address, chainID: chainID}, true
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		var out int64
		if _, err := fmt.Sscan(strings.TrimSpace(n), &out); err != nil {
			return 0, false
		}
		return out, true
	default:
		return 0, false
	}
}

func decimalValue(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case decimal.Decimal:
		return n, true
	default:
		return decimal.Decimal{}, false
	}
}
