package app

import (
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/outcome"
)

func (s *runtimeState) newOutcomesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "Inspect recorded execution outcomes",
	}
	cmd.AddCommand(s.newOutcomesListCommand())
	cmd.AddCommand(s.newOutcomesShowCommand())
	return cmd
}

func (s *runtimeState) newOutcomesListCommand() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded outcomes, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter outcome.RecordStatus
			switch strings.ToLower(strings.TrimSpace(status)) {
			case "":
			case string(outcome.RecordCompleted):
				filter = outcome.RecordCompleted
			case string(outcome.RecordFailed):
				filter = outcome.RecordFailed
			default:
				return clierr.New(clierr.CodeUsage, "status must be completed or failed")
			}
			if limit <= 0 {
				return clierr.New(clierr.CodeUsage, "--limit must be positive")
			}
			store, err := s.openOutcomeStore()
			if err != nil {
				return err
			}
			records, err := store.List(filter, limit)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{
				"count":    len(records),
				"outcomes": records,
			}, nil)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (completed|failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows to return")
	return cmd
}

func (s *runtimeState) newOutcomesShowCommand() *cobra.Command {
	var executionID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the recorded outcome of one execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(executionID) == "" {
				return clierr.New(clierr.CodeUsage, "--execution-id is required")
			}
			store, err := s.openOutcomeStore()
			if err != nil {
				return err
			}
			record, err := store.Get(executionID)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), record, nil)
		},
	}
	cmd.Flags().StringVar(&executionID, "execution-id", "", "Execution to look up")
	_ = cmd.MarkFlagRequired("execution-id")
	return cmd
}
