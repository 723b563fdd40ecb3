package app

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/policy"
)

func (s *runtimeState) newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and tune the wallet's risk policy",
	}
	cmd.AddCommand(s.newPolicyShowCommand())
	cmd.AddCommand(s.newPolicySetCommand())
	cmd.AddCommand(s.newPolicyPresetCommand())
	cmd.AddCommand(s.newPolicyResetCommand())
	return cmd
}

func (s *runtimeState) requireWallet() (string, error) {
	wallet := strings.TrimSpace(s.settings.Wallet)
	if wallet == "" {
		return "", clierr.New(clierr.CodeUsage, "--wallet is required (flag, env, or config)")
	}
	return wallet, nil
}

func (s *runtimeState) newPolicyShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the wallet's risk policy (defaults materialize on first access)",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, err := s.requireWallet()
			if err != nil {
				return err
			}
			store, err := s.openPolicyStore()
			if err != nil {
				return err
			}
			cfg, err := store.Get(wallet)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), cfg, nil)
		},
	}
}

func (s *runtimeState) newPolicySetCommand() *cobra.Command {
	var (
		maxSingleTx     string
		approvalAbove   string
		maxSlippage     string
		warnSlippage    string
		maxGasPercent   string
		warnGasPercent  string
		maxDailyVolume  string
		maxPositionPct  string
		minLiquidityUSD string
		enabled         bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update individual risk policy fields (unset flags keep their value)",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, err := s.requireWallet()
			if err != nil {
				return err
			}
			store, err := s.openPolicyStore()
			if err != nil {
				return err
			}
			cfg, err := store.Get(wallet)
			if err != nil {
				return err
			}

			fields := map[string]*decimal.Decimal{
				"max-single-tx":        &cfg.MaxSingleTxUSD,
				"approval-above":       &cfg.RequireApprovalAboveUSD,
				"max-slippage":         &cfg.MaxSlippagePercent,
				"warn-slippage":        &cfg.WarnSlippagePercent,
				"max-gas-percent":      &cfg.MaxGasPercent,
				"warn-gas-percent":     &cfg.WarnGasPercent,
				"max-daily-volume":     &cfg.MaxDailyVolumeUSD,
				"max-position-percent": &cfg.MaxPositionPercent,
				"min-liquidity":        &cfg.MinLiquidityUSD,
			}
			var flagErr error
			cmd.Flags().Visit(func(f *pflag.Flag) {
				dst, ok := fields[f.Name]
				if !ok || flagErr != nil {
					return
				}
				v, err := decimal.NewFromString(strings.TrimSpace(f.Value.String()))
				if err != nil {
					flagErr = clierr.Wrap(clierr.CodeUsage, "parse --"+f.Name, err)
					return
				}
				if v.IsNegative() {
					flagErr = clierr.New(clierr.CodeUsage, "--"+f.Name+" must not be negative")
					return
				}
				*dst = v
			})
			if flagErr != nil {
				return flagErr
			}
			if cmd.Flags().Changed("enabled") {
				cfg.Enabled = enabled
			}

			if err := store.Save(wallet, cfg); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), cfg, nil)
		},
	}
	cmd.Flags().StringVar(&maxSingleTx, "max-single-tx", "", "Max single transaction value in USD")
	cmd.Flags().StringVar(&approvalAbove, "approval-above", "", "Require explicit approval above this USD value")
	cmd.Flags().StringVar(&maxSlippage, "max-slippage", "", "Blocking slippage threshold in percent")
	cmd.Flags().StringVar(&warnSlippage, "warn-slippage", "", "Warning slippage threshold in percent")
	cmd.Flags().StringVar(&maxGasPercent, "max-gas-percent", "", "Blocking gas-to-value ratio in percent")
	cmd.Flags().StringVar(&warnGasPercent, "warn-gas-percent", "", "Warning gas-to-value ratio in percent")
	cmd.Flags().StringVar(&maxDailyVolume, "max-daily-volume", "", "Max 24h executed volume in USD")
	cmd.Flags().StringVar(&maxPositionPct, "max-position-percent", "", "Max position size as percent of portfolio")
	cmd.Flags().StringVar(&minLiquidityUSD, "min-liquidity", "", "Minimum pool liquidity in USD")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Whether risk checks run at all")
	return cmd
}

func (s *runtimeState) newPolicyPresetCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "preset <name>",
		Short:     "Replace the risk policy with a named preset (" + strings.Join(policy.PresetNames(), "|") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: policy.PresetNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, err := s.requireWallet()
			if err != nil {
				return err
			}
			store, err := s.openPolicyStore()
			if err != nil {
				return err
			}
			cfg, err := store.ApplyPreset(wallet, args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), cfg, nil)
		},
	}
}

func (s *runtimeState) newPolicyResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the risk policy to the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, err := s.requireWallet()
			if err != nil {
				return err
			}
			store, err := s.openPolicyStore()
			if err != nil {
				return err
			}
			cfg, err := store.Reset(wallet)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), cfg, nil)
		},
	}
}
