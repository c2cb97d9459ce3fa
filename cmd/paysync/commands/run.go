package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/paysync/am"
	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/ixgest/payroll"
	"github.com/teranos/paysync/logger"
	"github.com/teranos/paysync/sym"
)

// RunCmd represents the run command - extraction
var RunCmd = &cobra.Command{
	Use:   "run <profile|check>",
	Short: sym.IX + " Extract payroll records into storage",
	Long: sym.IX + ` run - extract payroll records into storage

Modes:
  profile  One employee snapshot per load day into employee_list_type_1
           (hourly rate) or employee_list_type_2 (exception facilities).
           Runs once, then again every day at schedule.daily_at.
  check    Every line of every paycheck into employee_checks.
           Runs passes back to back until interrupted.

The legacy names details and checks are accepted.

Resuming:
  --begin-at N skips the first N clients of the client list.
  --page N starts the first resumed client at employee page N.
  The last position reached is recorded in extract_runs (see 'paysync db stats').

Examples:
  paysync run profile
  paysync run check --begin-at 3 --page 12
  paysync run profile --once        # Single pass, no daily schedule`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := payroll.ParseMode(args[0])
		if err != nil {
			return err
		}
		beginAt, _ := cmd.Flags().GetInt("begin-at")
		page, _ := cmd.Flags().GetInt("page")
		once, _ := cmd.Flags().GetBool("once")
		verbosity, _ := cmd.Flags().GetCount("verbose")

		if beginAt < 0 || page < 0 {
			return errors.NewInvalidRequestError("--begin-at and --page must be >= 0, got %d and %d", beginAt, page)
		}
		return runExtract(cmd, mode, payroll.Checkpoint{ClientOffset: beginAt, Page: page}, once, verbosity)
	},
}

func init() {
	RunCmd.Flags().Int("begin-at", 0, "Index of the first client to process")
	RunCmd.Flags().Int("page", 0, "Employee page of the first client to start at (0 = first page)")
	RunCmd.Flags().Bool("once", false, "Run a single pass and exit")
	RunCmd.Flags().Bool("export", false, "Also write inserted rows to a CSV file (overrides export.enabled)")
}

func runExtract(cmd *cobra.Command, mode payroll.Mode, cp payroll.Checkpoint, once bool, verbosity int) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if cmd.Flags().Changed("export") {
		cfg.Export.Enabled, _ = cmd.Flags().GetBool("export")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	logPath, err := logger.InitializeRun(mode.String(), cfg.Log.Dir, cfg.Log.JSON, logger.VerbosityToLevel(verbosity), time.Now())
	if err != nil {
		return err
	}

	pterm.DefaultHeader.WithFullWidth().Printf("paysync %s", mode)
	pterm.Println()
	pterm.Info.Printf("Starting at client %d, page %d\n", cp.ClientOffset, cp.Page)
	pterm.Info.Printf("Run log: %s\n", logPath)
	pterm.Println()

	ctx := cmd.Context()
	spinner, _ := pterm.DefaultSpinner.Start("Acquiring token and opening storage...")
	pl, err := buildPipeline(ctx, cfg, mode, verbosity)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success("Ready")
	defer pl.Close()

	if pl.exporter != nil {
		pterm.Info.Printf("Exporting to %s\n", pl.exporter.Path())
	}

	if once {
		result, err := pl.processor.RunOnce(ctx, cp)
		if result != nil {
			printResult(result)
		}
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	if err := pl.processor.Run(ctx, cp); err != nil {
		return err
	}
	pterm.Warning.Println("Interrupted, stopping")
	return nil
}

func printResult(result *payroll.RunResult) {
	pterm.Println()
	pterm.Info.Println("Statistics:")
	pterm.Printf("  Clients:    %d\n", result.Clients)
	pterm.Printf("  Employees:  %d\n", result.Employees)
	if result.Mode == payroll.ModeCheck {
		pterm.Printf("  Checks:     %d\n", result.Checks)
	}
	pterm.Printf("  Loaded:     %d\n", result.Loaded)
	pterm.Printf("  Skipped:    %d\n", result.Skipped)
	pterm.Printf("  Failed:     %d\n", result.Failed)
	pterm.Printf("  Position:   --begin-at %d --page %d\n", result.Position.ClientOffset, result.Position.Page)
	pterm.Printf("  Duration:   %s\n", result.Duration().Round(time.Millisecond))

	if len(result.Failures) > 0 {
		pterm.Println()
		pterm.Warning.Println("Failures (showing first 5):")
		for i, f := range result.Failures {
			if i >= 5 {
				break
			}
			pterm.Printf("  %s client=%s employee=%s: %v\n", f.Op, f.ClientID, f.EmployeeID, f.Err)
		}
	}
}
