package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/paysync/cmd/paysync/commands"
	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/logger"
	"github.com/teranos/paysync/sym"
)

var rootCmd = &cobra.Command{
	Use:   "paysync",
	Short: "paysync - payroll API extraction into relational storage",
	Long: `paysync - extract employee profiles and paychecks from the payroll API.

paysync walks every client of the payroll API, resolves organization codes
against each client's lookup tables and writes report rows idempotently.

Available commands:
  run     - Extract profiles or checks into storage
  am      - Show and validate configuration ("I am")
  db      - Apply the schema and show load statistics
  version - Show build information

Examples:
  paysync run profile                  # Profile pass, then daily at schedule.daily_at
  paysync run check --begin-at 3       # Check passes back to back from the 4th client
  paysync run check --begin-at 3 --page 12
  paysync am show                      # Show current configuration
  paysync db stats                     # Row counts and recent runs`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 'am show' prints TOML to stdout and must stay free of log lines
		if cmd.Name() == "show" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.InitializeWithLevel(false, logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	for _, cmd := range []*cobra.Command{commands.RunCmd, commands.AmCmd, commands.DbCmd, commands.VersionCmd} {
		if glyph, ok := sym.CommandToSymbol[cmd.Name()]; ok {
			cmd.Aliases = append(cmd.Aliases, glyph)
		}
		rootCmd.AddCommand(cmd)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Cleanup()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
