package main

import (
	"context"
	"fmt"

	"github.com/harunnryd/vigil/cmd/vigil/runtime"

	"github.com/harunnryd/vigil/internal/executor"
	"github.com/harunnryd/vigil/internal/report"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [plan-id]",
	Short: "Execute an approved plan",
	Long:  `Execute an approved plan under the active safety policy. Without --dry-run the tier's dry-run default applies.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var dryRun *bool
		if cmd.Flags().Changed("dry-run") {
			value, _ := cmd.Flags().GetBool("dry-run")
			dryRun = &value
		}

		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			log, err := r.RunPlan(ctx, args[0], dryRun)
			if log != nil {
				if renderErr := render(cmd, func(f report.Formatter) (string, error) { return f.FormatRun(log) }); renderErr != nil {
					return renderErr
				}
			}
			if err != nil {
				return err
			}
			if log.Status == executor.StatusFailed {
				return fmt.Errorf("run %s failed: %s", log.RunID, log.ErrorMessage)
			}
			return nil
		})
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback [run-id]",
	Short: "Restore the backups taken by a failed run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			log, err := r.Rollback(ctx, args[0])
			if log != nil {
				if renderErr := render(cmd, func(f report.Formatter) (string, error) { return f.FormatRun(log) }); renderErr != nil {
					return renderErr
				}
			}
			return err
		})
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List run summaries, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			if len(args) == 1 {
				log, err := r.Executor.LoadLog(args[0])
				if err != nil {
					return err
				}
				return render(cmd, func(f report.Formatter) (string, error) { return f.FormatRun(log) })
			}

			logs, err := r.Executor.Logs()
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return render(cmd, func(f report.Formatter) (string, error) { return f.FormatRuns(logs) })
		})
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "report what would happen without touching the workspace")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(runsCmd)
}
