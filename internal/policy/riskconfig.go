package policy

import (
	"github.com/shopspring/decimal"

	clierr "github.com/gustavo/tradeguard/internal/errors"
)

// RiskPolicyConfig holds the per-wallet risk limits applied to every intent.
// Owned by the wallet holder; defaults materialize on first access and the
// config is only ever reset, never deleted.
type RiskPolicyConfig struct {
	MaxSingleTxUSD          decimal.Decimal `json:"max_single_tx_usd" yaml:"max_single_tx_usd"`
	RequireApprovalAboveUSD decimal.Decimal `json:"require_approval_above_usd" yaml:"require_approval_above_usd"`
	MaxSlippagePercent      decimal.Decimal `json:"max_slippage_percent" yaml:"max_slippage_percent"`
	WarnSlippagePercent     decimal.Decimal `json:"warn_slippage_percent" yaml:"warn_slippage_percent"`
	MaxGasPercent           decimal.Decimal `json:"max_gas_percent" yaml:"max_gas_percent"`
	WarnGasPercent          decimal.Decimal `json:"warn_gas_percent" yaml:"warn_gas_percent"`
	MaxDailyVolumeUSD       decimal.Decimal `json:"max_daily_volume_usd" yaml:"max_daily_volume_usd"`
	MaxPositionPercent      decimal.Decimal `json:"max_position_percent" yaml:"max_position_percent"`
	MinLiquidityUSD         decimal.Decimal `json:"min_liquidity_usd" yaml:"min_liquidity_usd"`
	Enabled                 bool            `json:"enabled" yaml:"enabled"`
}

// DefaultRiskPolicy is the config materialized on a wallet's first access.
func DefaultRiskPolicy() RiskPolicyConfig {
	return RiskPolicyConfig{
		MaxSingleTxUSD:          decimal.NewFromInt(10_000),
		RequireApprovalAboveUSD: decimal.NewFromInt(1_000),
		MaxSlippagePercent:      decimal.NewFromFloat(3),
		WarnSlippagePercent:     decimal.NewFromFloat(1),
		MaxGasPercent:           decimal.NewFromInt(10),
		WarnGasPercent:          decimal.NewFromInt(5),
		MaxDailyVolumeUSD:       decimal.NewFromInt(50_000),
		MaxPositionPercent:      decimal.NewFromInt(25),
		MinLiquidityUSD:         decimal.NewFromInt(100_000),
		Enabled:                 true,
	}
}

// Preset names accepted by ApplyPreset.
const (
	PresetConservative = "conservative"
	PresetBalanced     = "balanced"
	PresetAggressive   = "aggressive"
)

var presets = map[string]RiskPolicyConfig{
	PresetConservative: {
		MaxSingleTxUSD:          decimal.NewFromInt(1_000),
		RequireApprovalAboveUSD: decimal.NewFromInt(100),
		MaxSlippagePercent:      decimal.NewFromFloat(1),
		WarnSlippagePercent:     decimal.NewFromFloat(0.5),
		MaxGasPercent:           decimal.NewFromInt(5),
		WarnGasPercent:          decimal.NewFromInt(2),
		MaxDailyVolumeUSD:       decimal.NewFromInt(5_000),
		MaxPositionPercent:      decimal.NewFromInt(10),
		MinLiquidityUSD:         decimal.NewFromInt(500_000),
		Enabled:                 true,
	},
	PresetBalanced: DefaultRiskPolicy(),
	PresetAggressive: {
		MaxSingleTxUSD:          decimal.NewFromInt(100_000),
		RequireApprovalAboveUSD: decimal.NewFromInt(10_000),
		MaxSlippagePercent:      decimal.NewFromFloat(5),
		WarnSlippagePercent:     decimal.NewFromFloat(3),
		MaxGasPercent:           decimal.NewFromInt(20),
		WarnGasPercent:          decimal.NewFromInt(10),
		MaxDailyVolumeUSD:       decimal.NewFromInt(500_000),
		MaxPositionPercent:      decimal.NewFromInt(50),
		MinLiquidityUSD:         decimal.NewFromInt(25_000),
		Enabled:                 true,
	},
}

// Preset returns the named risk preset.
func Preset(name string) (RiskPolicyConfig, error) {
	cfg, ok := presets[name]
	if !ok {
		return RiskPolicyConfig{}, clierr.New(clierr.CodeUsage, "unknown risk preset: "+name)
	}
	return cfg, nil
}

// PresetNames lists the accepted preset names.
func PresetNames() []string {
	return []string{PresetConservative, PresetBalanced, PresetAggressive}
}
