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

func (s *runtimeState) newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage session key grants",
	}
	cmd.AddCommand(s.newSessionsListCommand())
	cmd.AddCommand(s.newSessionsCreateCommand())
	cmd.AddCommand(s.newSessionsRevokeCommand())
	return cmd
}

func (s *runtimeState) newSessionsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List session grants for the wallet, with live usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet := strings.TrimSpace(s.settings.Wallet)
			if wallet == "" {
				return clierr.New(clierr.CodeUsage, "--wallet is required (flag, env, or config)")
			}
			store, err := s.openSessionStore()
			if err != nil {
				return err
			}
			ledger, err := s.sessionLedger()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			sessions, err := policydata.NewSessionProvider(store, ledger).Resolve(ctx, wallet, time.Now())
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{
				"wallet":   strings.ToLower(wallet),
				"sessions": sessions,
			}, nil)
		},
	}
}

func (s *runtimeState) newSessionsCreateCommand() *cobra.Command {
	var (
		maxPerTx    string
		maxTotal    string
		duration    time.Duration
		permissions []string
		chains      []int64
		tokens      []string
		contracts   []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session key grant",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet := strings.TrimSpace(s.settings.Wallet)
			if wallet == "" {
				return clierr.New(clierr.CodeUsage, "--wallet is required (flag, env, or config)")
			}
			perTx, err := decimal.NewFromString(maxPerTx)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "parse --max-per-tx", err)
			}
			total, err := decimal.NewFromString(maxTotal)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "parse --max-total", err)
			}
			perms, err := parsePermissions(permissions)
			if err != nil {
				return err
			}

			store, err := s.openSessionStore()
			if err != nil {
				return err
			}
			session, err := store.Create(policy.SessionKeyData{
				Wallet:            wallet,
				Permissions:       perms,
				MaxValuePerTxUSD:  perTx,
				MaxTotalValueUSD:  total,
				ChainAllowlist:    chains,
				TokenAllowlist:    tokens,
				ContractAllowlist: contracts,
				ExpiresAt:         time.Now().Add(duration),
			})
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), session, nil)
		},
	}
	cmd.Flags().StringVar(&maxPerTx, "max-per-tx", "", "Per-transaction value cap in USD")
	cmd.Flags().StringVar(&maxTotal, "max-total", "", "Total session budget in USD (0 for unlimited)")
	cmd.Flags().DurationVar(&duration, "duration", 24*time.Hour, "How long the grant stays valid")
	cmd.Flags().StringSliceVar(&permissions, "permissions", []string{"swap"}, "Permitted intent types (swap,bridge)")
	cmd.Flags().Int64SliceVar(&chains, "chains", nil, "Chain allowlist (empty allows all)")
	cmd.Flags().StringSliceVar(&tokens, "tokens", nil, "Token allowlist as chainID:address keys (empty allows all)")
	cmd.Flags().StringSliceVar(&contracts, "contracts", nil, "Contract allowlist (empty allows all)")
	_ = cmd.MarkFlagRequired("max-per-tx")
	_ = cmd.MarkFlagRequired("max-total")
	return cmd
}

func (s *runtimeState) newSessionsRevokeCommand() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a session key grant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(id) == "" {
				return clierr.New(clierr.CodeUsage, "--id is required")
			}
			store, err := s.openSessionStore()
			if err != nil {
				return err
			}
			if err := store.Revoke(id); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{
				"id":     id,
				"status": string(policy.SessionRevoked),
			}, nil)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Session ID to revoke")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func parsePermissions(raw []string) ([]policy.IntentType, error) {
	perms := make([]policy.IntentType, 0, len(raw))
	for _, p := range raw {
		switch t := policy.IntentType(strings.ToLower(strings.TrimSpace(p))); t {
		case policy.IntentSwap, policy.IntentBridge:
			perms = append(perms, t)
		default:
			return nil, clierr.New(clierr.CodeUsage, "unknown permission: "+p)
		}
	}
	return perms, nil
}
