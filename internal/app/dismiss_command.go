package app

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/outcome"
)

// dismiss records a user rejection for a backend-offered execution so it is
// never re-offered, without ever touching the chain.
func (s *runtimeState) newDismissCommand() *cobra.Command {
	var executionID string
	cmd := &cobra.Command{
		Use:   "dismiss",
		Short: "Dismiss a pending execution without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(executionID)
			if id == "" {
				return clierr.New(clierr.CodeUsage, "--execution-id is required")
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()

			recorder, err := s.recorder()
			if err != nil {
				return err
			}
			if err := recorder.RecordFailure(ctx, outcome.Failure{
				ExecutionID:  id,
				ErrorMessage: "execution dismissed by user",
				ErrorCode:    clierr.CodeUserDismissed,
				Recoverable:  true,
				FailedAt:     time.Now(),
			}); err != nil {
				return err
			}
			if err := s.processedSet().Mark(ctx, id); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{
				"execution_id": id,
				"status":       "dismissed",
			}, nil)
		},
	}
	cmd.Flags().StringVar(&executionID, "execution-id", "", "Execution to dismiss")
	_ = cmd.MarkFlagRequired("execution-id")
	return cmd
}
