package main

import (
	"context"
	"fmt"
	"time"

	"github.com/harunnryd/vigil/cmd/vigil/runtime"

	"github.com/harunnryd/vigil/internal/report"

	"github.com/spf13/cobra"
)

var janitorCmd = &cobra.Command{
	Use:   "janitor",
	Short: "Prune old backups and run summaries",
	Long:  `Run the retention janitor on its cron schedule until interrupted, or prune once with --once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")

		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			if once {
				result, err := r.Janitor.PruneOnce(time.Now())
				if renderErr := render(cmd, func(f report.Formatter) (string, error) { return f.FormatPrune(result) }); renderErr != nil {
					return renderErr
				}
				return err
			}

			if err := r.Janitor.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize janitor: %w", err)
			}
			if err := r.Janitor.Start(ctx); err != nil {
				return fmt.Errorf("failed to start janitor: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Janitor running on schedule %q. Press Ctrl+C to stop.\n", r.Config.Retention.Schedule)

			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return r.Janitor.Stop(stopCtx)
		})
	},
}

func init() {
	janitorCmd.Flags().Bool("once", false, "prune immediately and exit")
	rootCmd.AddCommand(janitorCmd)
}
