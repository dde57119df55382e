package main

import (
	"context"
	"fmt"

	"github.com/harunnryd/vigil/cmd/vigil/runtime"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/plan"
	"github.com/harunnryd/vigil/internal/report"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage execution plans",
	Long:  `Import, inspect, validate and move plans through their lifecycle (draft, pending, approved, rejected).`,
}

var planImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a plan document as a draft",
	Long:  `Read a YAML or JSON plan document (use - for stdin) and store it as a new draft plan.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			src, err := openSource(cmd, args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			p, err := r.ImportPlan(ctx, src)
			if err != nil {
				return err
			}
			return render(cmd, func(f report.Formatter) (string, error) { return f.FormatPlan(p) })
		})
	},
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusValues, _ := cmd.Flags().GetStringSlice("status")
		filter := make([]plan.Status, 0, len(statusValues))
		for _, value := range statusValues {
			status, err := plan.ParseStatus(value)
			if err != nil {
				return err
			}
			filter = append(filter, status)
		}

		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			plans, err := r.Plans.List(filter...)
			if err != nil {
				return fmt.Errorf("failed to list plans: %w", err)
			}
			return render(cmd, func(f report.Formatter) (string, error) { return f.FormatPlans(plans) })
		})
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show [plan-id]",
	Short: "Show a plan and its actions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			p, err := r.Plans.Load(args[0])
			if err != nil {
				return err
			}
			return render(cmd, func(f report.Formatter) (string, error) { return f.FormatPlan(p) })
		})
	},
}

var planValidateCmd = &cobra.Command{
	Use:   "validate [plan-id]",
	Short: "Validate a plan against the active safety policy",
	Long:  `Run the validator on a stored plan without changing it. Exits with status 3 when the plan has blocking issues.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			p, result, err := r.ValidatePlan(ctx, args[0])
			if err != nil {
				return err
			}
			if err := render(cmd, func(f report.Formatter) (string, error) { return f.FormatValidation(result) }); err != nil {
				return err
			}
			if result.HasBlockingIssues() {
				return fmt.Errorf("plan %s has blocking issues: %w", p.ID, vigilErrors.ErrValidationFailed)
			}
			return nil
		})
	},
}

var planSubmitCmd = &cobra.Command{
	Use:   "submit [plan-id]",
	Short: "Mark a draft plan as pending review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			p, err := r.SubmitPlan(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Plan %s is %s\n", p.ID, p.Status)
			return nil
		})
	},
}

var planApproveCmd = &cobra.Command{
	Use:   "approve [plan-id]",
	Short: "Validate and approve a plan",
	Long:  `Validate a plan against the active policy and approve it when nothing blocks. Plans at or above the tier's confirmation threshold ask for confirmation unless --yes is given.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			p, result, err := r.ApprovePlan(ctx, args[0], confirmPrompt(cmd))
			if err != nil {
				if result != nil && result.HasBlockingIssues() {
					if renderErr := render(cmd, func(f report.Formatter) (string, error) { return f.FormatValidation(result) }); renderErr != nil {
						return renderErr
					}
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Plan %s approved (%s risk)\n", p.ID, p.Risk)
			return nil
		})
	},
}

var planRejectCmd = &cobra.Command{
	Use:   "reject [plan-id]",
	Short: "Reject a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			p, err := r.RejectPlan(ctx, args[0], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Plan %s rejected\n", p.ID)
			return nil
		})
	},
}

var planDeleteCmd = &cobra.Command{
	Use:   "delete [plan-id]",
	Short: "Delete a stored plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			if err := r.DeletePlan(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Plan %s deleted\n", args[0])
			return nil
		})
	},
}

func init() {
	planListCmd.Flags().StringSlice("status", nil, "only list plans with these statuses")
	planApproveCmd.Flags().BoolP("yes", "y", false, "approve without asking for confirmation")
	planRejectCmd.Flags().String("reason", "", "reason recorded in the audit trail")

	planCmd.AddCommand(planImportCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planValidateCmd)
	planCmd.AddCommand(planSubmitCmd)
	planCmd.AddCommand(planApproveCmd)
	planCmd.AddCommand(planRejectCmd)
	planCmd.AddCommand(planDeleteCmd)
	rootCmd.AddCommand(planCmd)
}
