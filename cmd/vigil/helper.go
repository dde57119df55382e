package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harunnryd/vigil/cmd/vigil/runtime"

	"github.com/harunnryd/vigil/internal/config"
	"github.com/harunnryd/vigil/internal/plan"
	"github.com/harunnryd/vigil/internal/report"

	"github.com/spf13/cobra"
)

func executeWithRuntime(cmd *cobra.Command, fn func(context.Context, *runtime.RuntimeComponents) error) error {
	loaded := cfg
	if loaded == nil {
		var err error
		loaded, err = config.Load(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	signals := NewSignalHandler(context.Background())
	signals.Start()
	defer signals.Stop()

	components, err := runtime.NewRuntimeBuilder().
		WithContext(signals.Context()).
		WithConfig(loaded).
		Build()
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer components.Stop()

	return fn(components.Ctx, components)
}

func formatterFor(cmd *cobra.Command) (report.Formatter, error) {
	value, err := cmd.Flags().GetString("output")
	if err != nil {
		value = string(report.OutputFormatTable)
	}
	format, err := report.ParseOutputFormat(value)
	if err != nil {
		return nil, err
	}
	return report.New(format)
}

// render formats with the --output formatter and prints the result.
func render(cmd *cobra.Command, format func(report.Formatter) (string, error)) error {
	f, err := formatterFor(cmd)
	if err != nil {
		return err
	}
	out, err := format(f)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// openSource opens a plan document path, or stdin for "-".
func openSource(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan document: %w", err)
	}
	return f, nil
}

// confirmPrompt asks on the command's stdin unless --yes was given.
func confirmPrompt(cmd *cobra.Command) runtime.ConfirmFunc {
	return func(p *plan.ExecutionPlan) bool {
		if yes, _ := cmd.Flags().GetBool("yes"); yes {
			return true
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Plan %s (%q) is %s risk. Approve? [y/N]: ", p.ID, p.Title, p.Risk)
		return readYes(cmd.InOrStdin())
	}
}

func readYes(r io.Reader) bool {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
