package app

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/policy"
	"github.com/gustavo/tradeguard/internal/policydata"
)

func (s *runtimeState) newEvaluateCommand() *cobra.Command {
	var (
		intentType string
		fromToken  string
		fromChain  int64
		fromSymbol string
		toToken    string
		toChain    int64
		toSymbol   string
		amountUSD  string
		slippage   string
		gasUSD     string
		contract   string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the layered policy checks for a proposed transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet := strings.TrimSpace(s.settings.Wallet)
			if wallet == "" {
				return clierr.New(clierr.CodeUsage, "--wallet is required (flag, env, or config)")
			}
			intent, err := buildIntent(intentType, fromToken, fromChain, fromSymbol, toToken, toChain, toSymbol, amountUSD, slippage, gasUSD, contract)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			inputs, err := s.policyInputs(ctx, wallet)
			if err != nil {
				return err
			}

			result := policy.Evaluate(intent, wallet, inputs)
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), result, nil)
		},
	}
	cmd.Flags().StringVar(&intentType, "type", "swap", "Intent type (swap|bridge)")
	cmd.Flags().StringVar(&fromToken, "from-token", "", "Source token address")
	cmd.Flags().Int64Var(&fromChain, "from-chain", 1, "Source chain ID")
	cmd.Flags().StringVar(&fromSymbol, "from-symbol", "", "Source token symbol (informational)")
	cmd.Flags().StringVar(&toToken, "to-token", "", "Destination token address")
	cmd.Flags().Int64Var(&toChain, "to-chain", 0, "Destination chain ID (defaults to source)")
	cmd.Flags().StringVar(&toSymbol, "to-symbol", "", "Destination token symbol (informational)")
	cmd.Flags().StringVar(&amountUSD, "amount-usd", "", "Transaction value in USD")
	cmd.Flags().StringVar(&slippage, "slippage-percent", "0.5", "Expected slippage percent")
	cmd.Flags().StringVar(&gasUSD, "gas-usd", "0", "Estimated gas cost in USD")
	cmd.Flags().StringVar(&contract, "contract", "", "Interacting contract address")
	_ = cmd.MarkFlagRequired("from-token")
	_ = cmd.MarkFlagRequired("to-token")
	_ = cmd.MarkFlagRequired("amount-usd")
	return cmd
}

func buildIntent(intentType, fromToken string, fromChain int64, fromSymbol, toToken string, toChain int64, toSymbol, amountUSD, slippage, gasUSD, contract string) (*policy.TransactionIntent, error) {
	typ := policy.IntentType(strings.ToLower(strings.TrimSpace(intentType)))
	if typ != policy.IntentSwap && typ != policy.IntentBridge {
		return nil, clierr.New(clierr.CodeUsage, "intent type must be swap or bridge")
	}
	if toChain == 0 {
		toChain = fromChain
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(amountUSD))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse --amount-usd", err)
	}
	slip, err := decimal.NewFromString(strings.TrimSpace(slippage))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse --slippage-percent", err)
	}
	gas, err := decimal.NewFromString(strings.TrimSpace(gasUSD))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse --gas-usd", err)
	}
	return &policy.TransactionIntent{
		Type:            typ,
		FromToken:       policy.TokenRef{Address: fromToken, Symbol: fromSymbol, ChainID: fromChain},
		ToToken:         policy.TokenRef{Address: toToken, Symbol: toSymbol, ChainID: toChain},
		AmountUSD:       amount,
		SlippagePercent: slip,
		GasEstimateUSD:  gas,
		ContractAddress: contract,
	}, nil
}

// policyInputs resolves everything an evaluation needs: platform controls,
// the wallet's risk policy, its sessions with live ledger usage, and the
// trailing-24h executed volume.
func (s *runtimeState) policyInputs(ctx context.Context, wallet string) (policy.Inputs, error) {
	controls, err := policydata.LoadControls(s.settings.ControlsPath)
	if err != nil {
		return policy.Inputs{}, clierr.Wrap(clierr.CodeStore, "load platform controls", err)
	}

	policyStore, err := s.openPolicyStore()
	if err != nil {
		return policy.Inputs{}, err
	}
	riskPolicy, err := policyStore.Get(wallet)
	if err != nil {
		return policy.Inputs{}, err
	}

	sessionStore, err := s.openSessionStore()
	if err != nil {
		return policy.Inputs{}, err
	}
	ledger, err := s.sessionLedger()
	if err != nil {
		return policy.Inputs{}, err
	}
	now := time.Now()
	sessions, err := policydata.NewSessionProvider(sessionStore, ledger).Resolve(ctx, wallet, now)
	if err != nil {
		return policy.Inputs{}, err
	}

	outcomes, err := s.openOutcomeStore()
	if err != nil {
		return policy.Inputs{}, err
	}
	dailyVolume, err := outcomes.CompletedVolumeSince(now.Add(-24 * time.Hour))
	if err != nil {
		return policy.Inputs{}, err
	}

	return policy.Inputs{
		System:         controls.System,
		Policy:         riskPolicy,
		Sessions:       sessions,
		Lists:          controls.Lists,
		DailyVolumeUSD: dailyVolume,
		Now:            now,
	}, nil
}
