package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/paysync/am"
	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Show and validate paysync configuration",
	Long: sym.AM + ` am - Show and validate paysync configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (PAYSYNC_* prefix)
2. .env in the working directory (CLIENT_ID, CLIENT_SECRET, BASE_URL, DB_DRIVER, DB_DSN)
3. Project config (./am.toml or ./config.toml, searched upwards)
4. User config (~/.paysync/am.toml)
5. System config (/etc/paysync/config.toml)
6. Default values

Secrets are masked in every output.

Examples:
  paysync am show                    # Show current configuration
  paysync am show --format json      # Show every setting with its source
  paysync am get refresh.check_seconds
  paysync am validate                # Validate current configuration
  paysync am where                   # Show where each setting came from`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., api.base_url, schedule.daily_at)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	switch configFormat {
	case "json":
		settings, err := am.Introspect()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))

	case "toml":
		out, err := am.RenderTOML(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# paysync configuration\n%s", out)

	default:
		return errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json)", configFormat)
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if _, err := am.Load(); err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if !am.GetViper().IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}
	if am.IsSensitive(key) {
		fmt.Fprintln(cmd.OutOrStdout(), am.Mask)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	settings, err := am.Introspect()
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println("Configuration cascade (later overrides earlier)")
	pterm.Println("  1. [default]      Built-in defaults")
	pterm.Println("  2. [system]       /etc/paysync/config.toml")
	pterm.Println("  3. [user]         ~/.paysync/am.toml")
	pterm.Println("  4. [project]      ./am.toml or ./config.toml (searches up directories)")
	pterm.Printf("  5. [dotenv]       %s\n", am.DotenvPath)
	pterm.Println("  6. [environment]  PAYSYNC_* environment variables")
	pterm.Println()

	sort.SliceStable(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
	rows := pterm.TableData{{"Key", "Value", "Source", "Path"}}
	for _, s := range settings {
		rows = append(rows, []string{s.Key, fmt.Sprintf("%v", s.Value), string(s.Source), s.SourcePath})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
