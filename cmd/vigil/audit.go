package main

import (
	"context"
	"fmt"
	"time"

	"github.com/harunnryd/vigil/cmd/vigil/runtime"

	"github.com/harunnryd/vigil/internal/audit"
	"github.com/harunnryd/vigil/internal/report"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and maintain the audit trail",
	Long:  `Verify the hash chain, summarize and query events, and repair the audit side-car files.`,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit hash chain",
	Long:  `Walk every audit event, checking the previous-hash links and recomputing each hash. Exits with status 5 when the chain is broken.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			if err := r.Audit.Verify(ctx); err != nil {
				return err
			}
			head, err := r.Audit.LastHash()
			if err != nil {
				return err
			}
			if head == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Audit trail is empty")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Audit chain intact, head %s\n", head)
			return nil
		})
	},
}

var auditSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show event counts, integrity status and recent critical events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			summary, err := r.Audit.Summary(ctx)
			if err != nil {
				return err
			}
			return render(cmd, func(f report.Formatter) (string, error) { return f.FormatAuditSummary(summary) })
		})
	},
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			events, err := r.Audit.Query(ctx, filter)
			if err != nil {
				return err
			}
			return render(cmd, func(f report.Formatter) (string, error) { return f.FormatEvents(events) })
		})
	},
}

var auditRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Rebuild the chain head record from the event files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			head, err := r.Audit.RecoverLastHash(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Chain head recovered: %s\n", displayHash(head))
			return nil
		})
	},
}

var auditReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the audit statistics index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			if err := r.Audit.RebuildIndex(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Audit index rebuilt")
			return nil
		})
	},
}

func auditFilterFromFlags(cmd *cobra.Command) (*audit.Filter, error) {
	limit, _ := cmd.Flags().GetInt("limit")
	types, _ := cmd.Flags().GetStringSlice("type")
	severity, _ := cmd.Flags().GetString("severity")
	since, _ := cmd.Flags().GetDuration("since")
	planID, _ := cmd.Flags().GetString("plan")
	runID, _ := cmd.Flags().GetString("run")

	filter := &audit.Filter{
		MinSeverity: audit.Severity(severity),
		PlanID:      planID,
		RunID:       runID,
		Limit:       limit,
	}
	switch filter.MinSeverity {
	case "", audit.SeverityInfo, audit.SeverityWarning, audit.SeverityError, audit.SeverityCritical:
	default:
		return nil, fmt.Errorf("unknown severity %q (info, warning, error, critical)", severity)
	}
	for _, t := range types {
		filter.Types = append(filter.Types, audit.EventType(t))
	}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}
	return filter, nil
}

func displayHash(hash string) string {
	if hash == "" {
		return "(empty log)"
	}
	return hash
}

func init() {
	auditTailCmd.Flags().IntP("limit", "n", 20, "number of events to show")
	auditTailCmd.Flags().StringSlice("type", nil, "only show these event types")
	auditTailCmd.Flags().String("severity", "", "minimum severity (info, warning, error, critical)")
	auditTailCmd.Flags().Duration("since", 0, "only show events newer than this, e.g. 24h")
	auditTailCmd.Flags().String("plan", "", "only show events for this plan id")
	auditTailCmd.Flags().String("run", "", "only show events for this run id")

	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditSummaryCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditRecoverCmd)
	auditCmd.AddCommand(auditReindexCmd)
	rootCmd.AddCommand(auditCmd)
}
