package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harunnryd/vigil/cmd/vigil/runtime"

	"github.com/harunnryd/vigil/internal/config"
	"github.com/harunnryd/vigil/internal/report"
	"github.com/harunnryd/vigil/internal/safety"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var safetyCmd = &cobra.Command{
	Use:   "safety",
	Short: "Show and change the safety policy",
}

var safetyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active safety policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			policy := r.Policies.Current()
			return render(cmd, func(f report.Formatter) (string, error) { return f.FormatPolicy(policy) })
		})
	},
}

var safetySetTierCmd = &cobra.Command{
	Use:   "set-tier [tier]",
	Short: "Switch the safety tier and persist it to the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := safety.ParseTier(args[0])
		if err != nil {
			return err
		}

		configPath, err := resolveConfigPath(cmd)
		if err != nil {
			return fmt.Errorf("failed to resolve config path: %w", err)
		}

		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			prev := r.Policies.Tier()
			if _, err := r.SwitchTier(ctx, tier); err != nil {
				return err
			}

			previous, err := saveSafetyTier(configPath, tier)
			if err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			if previous == "" {
				previous = string(prev)
			}
			r.RecordConfigChange(ctx, configPath, "safety.tier", previous, string(tier))

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Safety tier set to %s (saved to %s)\n", tier, configPath)
			return nil
		})
	},
}

func init() {
	safetyCmd.AddCommand(safetyShowCmd)
	safetyCmd.AddCommand(safetySetTierCmd)
	rootCmd.AddCommand(safetyCmd)
}

// saveSafetyTier writes safety.tier into the YAML config at configPath,
// keeping every other setting. It returns the tier the file held before.
func saveSafetyTier(configPath string, tier safety.Tier) (string, error) {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return "", err
	}

	cfgData := map[string]interface{}{}
	if data, err := os.ReadFile(configPath); err == nil && len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfgData); err != nil {
			return "", err
		}
	} else if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	section, _ := cfgData["safety"].(map[string]interface{})
	if section == nil {
		section = map[string]interface{}{}
	}
	previous, _ := section["tier"].(string)
	section["tier"] = string(tier)
	cfgData["safety"] = section

	data, err := yaml.Marshal(cfgData)
	if err != nil {
		return "", err
	}

	return previous, atomic.WriteFile(configPath, bytes.NewReader(data))
}

func resolveConfigPath(cmd *cobra.Command) (string, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}

	if configPath != "" {
		return configPath, nil
	}

	return config.DefaultConfigPath()
}
