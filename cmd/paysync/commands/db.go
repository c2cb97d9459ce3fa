package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/paysync/am"
	"github.com/teranos/paysync/db"
	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/load"
	"github.com/teranos/paysync/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the report database",
	Long: sym.DB + ` db - Manage the report database

Examples:
  paysync db migrate              # Create or upgrade the report tables
  paysync db stats                # Row counts and the last 20 runs
  paysync db stats --limit 5      # Row counts and the last 5 runs`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show report row counts and recent runs",
	RunE:  runDbStats,
}

var statsLimitFlag int

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
	dbStatsCmd.Flags().IntVar(&statsLimitFlag, "limit", 20, "Number of recent runs to show")
}

func loadDatabaseConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if cfg.Database.Driver == "" || cfg.Database.DSN == "" {
		return nil, errors.WithHint(errors.NewInvalidRequestError("database.driver and database.dsn are required"),
			"set them in am.toml or as DB_DRIVER and DB_DSN in .env")
	}
	return cfg, nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadDatabaseConfig()
	if err != nil {
		return err
	}
	session, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	pterm.Success.Printf("Schema is up to date (%s)\n", session.Driver())
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadDatabaseConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	session, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	counts, err := db.CountReportRows(ctx, session)
	if err != nil {
		return err
	}

	pterm.DefaultSection.Printf("%s Report tables (%s)", sym.DB, session.Driver())
	tableRows := pterm.TableData{{"Table", "Rows"}}
	for _, c := range counts {
		tableRows = append(tableRows, []string{c.Table, pterm.Sprintf("%d", c.Rows)})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(tableRows).Render(); err != nil {
		return err
	}

	runs, err := load.NewRunStore(session).Recent(ctx, statsLimitFlag)
	if err != nil {
		return err
	}
	pterm.DefaultSection.Printf("Recent runs (last %d)", statsLimitFlag)
	if len(runs) == 0 {
		pterm.Info.Println("No runs recorded yet")
		return nil
	}

	runRows := pterm.TableData{{"Started", "Mode", "Status", "Resume", "Loaded", "Skipped", "Failed", "Error"}}
	for _, r := range runs {
		runRows = append(runRows, []string{
			r.StartedAt.Local().Format(time.DateTime),
			r.Mode,
			r.Status,
			pterm.Sprintf("--begin-at %d --page %d", r.ClientOffset, r.Page),
			pterm.Sprintf("%d", r.Loaded),
			pterm.Sprintf("%d", r.Skipped),
			pterm.Sprintf("%d", r.Failed),
			r.Error.String,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(runRows).Render()
}
