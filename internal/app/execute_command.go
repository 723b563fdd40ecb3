package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/executor"
	"github.com/gustavo/tradeguard/internal/planner"
	"github.com/gustavo/tradeguard/internal/policy"
	"github.com/gustavo/tradeguard/internal/wallet"
)

func (s *runtimeState) newExecuteCommand() *cobra.Command {
	var (
		executionID    string
		strategyID     string
		strategyType   string
		configArg      string
		sessionID      string
		source         string
		slippage       string
		gasUSD         string
		confirmTimeout time.Duration
		skipChecks     bool
	)
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Plan and execute a strategy, gated by the policy checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			walletAddr := strings.TrimSpace(s.settings.Wallet)
			if walletAddr == "" {
				return clierr.New(clierr.CodeUsage, "--wallet is required (flag, env, or config)")
			}
			src := executor.Source(strings.ToLower(strings.TrimSpace(source)))
			if src != executor.SourceUser && src != executor.SourceBackend {
				return clierr.New(clierr.CodeUsage, "source must be user or backend")
			}
			cfg, err := parseStrategyConfig(configArg)
			if err != nil {
				return err
			}
			if executionID == "" {
				executionID = uuid.NewString()
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()

			trade, err := planner.ParseTradeConfig(cfg)
			if err != nil {
				return err
			}
			req := executor.Request{
				ExecutionID:  executionID,
				StrategyID:   strategyID,
				StrategyType: strategyType,
				Config:       cfg,
				SessionID:    strings.TrimSpace(sessionID),
				AmountUSD:    trade.AmountUSD,
				Source:       src,
			}

			if !skipChecks {
				bound, err := s.authorize(ctx, cmd, walletAddr, trade, slippage, gasUSD, req.SessionID)
				if err != nil {
					return err
				}
				req.SessionID = bound
			}

			machine, watcher, err := s.buildMachine()
			if err != nil {
				return err
			}
			if err := s.driveExecution(ctx, machine, watcher, req, confirmTimeout); err != nil {
				return err
			}
			final := machine.State()
			var warnings []string
			if final.Plan != nil {
				warnings = final.Plan.Warnings
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), final, warnings)
		},
	}
	cmd.Flags().StringVar(&executionID, "execution-id", "", "Execution identifier (generated when empty)")
	cmd.Flags().StringVar(&strategyID, "strategy-id", "", "Strategy identifier")
	cmd.Flags().StringVar(&strategyType, "strategy-type", planner.StrategyPeriodicBuy, "Strategy type")
	cmd.Flags().StringVar(&configArg, "config", "", "Strategy config as JSON, or @path to a JSON file")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session key to attribute volume to (auto-bound when empty)")
	cmd.Flags().StringVar(&source, "source", string(executor.SourceUser), "Execution source (user|backend)")
	cmd.Flags().StringVar(&slippage, "slippage-percent", "0.5", "Expected slippage percent for policy checks")
	cmd.Flags().StringVar(&gasUSD, "gas-usd", "0", "Estimated gas cost in USD for policy checks")
	cmd.Flags().DurationVar(&confirmTimeout, "confirm-timeout", 3*time.Minute, "How long to await each transaction receipt")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Bypass policy evaluation (testing only)")
	_ = cmd.Flags().MarkHidden("skip-checks")
	_ = cmd.MarkFlagRequired("strategy-id")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// authorize runs the policy checks for the trade and returns the session ID
// the execution should be attributed to. A blocking check aborts with
// CodeBlocked before anything touches the chain.
func (s *runtimeState) authorize(ctx context.Context, cmd *cobra.Command, walletAddr string, trade planner.TradeConfig, slippage, gasUSD, sessionID string) (string, error) {
	intent, err := buildIntent("swap", trade.FromToken, trade.ChainID, "", trade.ToToken, trade.ChainID, "", trade.AmountUSD.String(), slippage, gasUSD, "")
	if err != nil {
		return "", err
	}
	inputs, err := s.policyInputs(ctx, walletAddr)
	if err != nil {
		return "", err
	}
	result := policy.Evaluate(intent, walletAddr, inputs)
	if !result.CanProceed {
		return "", clierr.New(clierr.CodeBlocked, blockedMessage(result))
	}
	for _, check := range result.Checks {
		if check.Status == policy.StatusWarn {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", check.Message)
		}
	}
	if sessionID == "" {
		if session := policy.ActiveSession(inputs.Sessions, inputs.Now); session != nil {
			sessionID = session.ID
		}
	}
	return sessionID, nil
}

func blockedMessage(result policy.EvaluationResult) string {
	reasons := make([]string, 0, result.BlockingCount)
	for _, check := range result.Checks {
		if check.Status == policy.StatusFail {
			reasons = append(reasons, check.Message)
		}
	}
	return "execution blocked by policy: " + strings.Join(reasons, "; ")
}

// buildMachine wires the executor against the local signer. A missing signer
// is not an error here: the machine records the failure itself so the outcome
// store keeps a trace of the attempt.
func (s *runtimeState) buildMachine() (*executor.Machine, *wallet.Watcher, error) {
	recorder, err := s.recorder()
	if err != nil {
		return nil, nil, err
	}
	pool := s.clientPool()
	log := s.logger()

	var sender executor.Sender
	if signer, signErr := wallet.NewLocalSignerFromEnv(); signErr == nil {
		sender = wallet.NewRPCSender(pool, signer, log)
	} else {
		log.Warn("no local signer configured", zap.Error(signErr))
	}

	machine := executor.NewMachine(
		planner.New(s.quoteService(), log),
		sender,
		wallet.NewChainReader(pool),
		recorder,
		s.processedSet(),
		log,
	)
	return machine, wallet.NewWatcher(pool, log), nil
}

// driveExecution runs the machine to a terminal state: each send yields,
// the watcher awaits the receipt, and the result is delivered back until
// the plan is exhausted.
func (s *runtimeState) driveExecution(ctx context.Context, machine *executor.Machine, watcher *wallet.Watcher, req executor.Request, confirmTimeout time.Duration) error {
	start := machine.Execute
	if req.Source == executor.SourceBackend {
		start = machine.HandleBackendExecution
	}
	if err := start(ctx, req); err != nil {
		return err
	}

	for {
		st := machine.State()
		switch st.Status {
		case executor.StatusApproving, executor.StatusExecuting, executor.StatusSigning:
			if st.TxHash == "" {
				return clierr.New(clierr.CodeInternal, "transaction in flight without a hash")
			}
			awaitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
			_, awaitErr := watcher.Await(awaitCtx, st.TxChainID, st.TxHash)
			cancel()
			ev := executor.Event{Type: executor.EventConfirmed, TxHash: st.TxHash}
			if awaitErr != nil {
				ev = executor.Event{Type: executor.EventFailed, TxHash: st.TxHash, Err: awaitErr}
			}
			if err := machine.Deliver(ctx, ev); err != nil {
				return err
			}
		case executor.StatusAwaitingMainTx, executor.StatusAwaitingSignature:
			if err := machine.Execute(ctx, req); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// parseStrategyConfig accepts inline JSON or an @file reference.
func parseStrategyConfig(arg string) (map[string]any, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, clierr.New(clierr.CodeUsage, "--config is required")
	}
	raw := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		buf, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "read config file", err)
		}
		raw = buf
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse strategy config JSON", err)
	}
	return cfg, nil
}
