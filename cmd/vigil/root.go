package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/vigil/internal/config"
	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/logger"
	"github.com/harunnryd/vigil/internal/report"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "vigil",
	Short:         "Vigil plan safety and execution engine",
	Long:          `Vigil validates file and command plans against a tiered safety policy, executes approved plans with backups and deadlines, and keeps a hash-chained audit trail.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Log.Level)
		return nil
	},
}

// Execute runs the root command and exits with the status mapped from the
// error category.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(vigilErrors.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vigil/config.yaml)")
	rootCmd.PersistentFlags().String("log.level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("workspace.root", config.DefaultWorkspaceRoot, "workspace directory plans operate on")
	rootCmd.PersistentFlags().String("safety.tier", config.DefaultSafetyTier, "safety tier (permissive, standard, strict, paranoid)")
	rootCmd.PersistentFlags().StringP("output", "o", string(report.OutputFormatTable), "output format (table, json, yaml)")
}
