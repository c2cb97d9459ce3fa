package payroll

import (
	"fmt"
	"sort"

	"github.com/pterm/pterm"
)

// CLIEmitter outputs pretty-printed progress to terminal using pterm
type CLIEmitter struct {
	verbosity int
}

// NewCLIEmitter creates a CLI progress emitter for terminal output
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return &CLIEmitter{verbosity: verbosity}
}

// EmitStage prints a stage announcement to terminal
func (e *CLIEmitter) EmitStage(stage string, message string) {
	if e.verbosity >= 1 || stage == "clients" {
		pterm.Printf("%s: %s\n", pterm.LightCyan(stage), message)
	}
}

// EmitProgress prints the running count of inserted rows
func (e *CLIEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	what := "rows"
	if itemType, ok := metadata["type"].(string); ok {
		what = itemType
	}
	facility, _ := metadata["facility_name"].(string)
	if facility != "" {
		pterm.Printf("Inserted %s %s (%s)\n", pterm.Green(fmt.Sprintf("%d", count)), what, facility)
		return
	}
	pterm.Printf("Inserted %s %s\n", pterm.Green(fmt.Sprintf("%d", count)), what)
}

// EmitComplete prints completion summary
func (e *CLIEmitter) EmitComplete(summary map[string]interface{}) {
	pterm.Success.Printf("Pass complete: %v loaded, %v skipped, %v failed\n",
		summary["loaded"], summary["skipped"], summary["failed"])
	if e.verbosity >= 1 {
		keys := make([]string, 0, len(summary))
		for key := range summary {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			pterm.Printf("  %s: %v\n", key, summary[key])
		}
	}
}

// EmitError prints an error
func (e *CLIEmitter) EmitError(stage string, err error) {
	pterm.Error.Printf("Error in %s: %v\n", stage, err)
}

// EmitInfo prints informational message
func (e *CLIEmitter) EmitInfo(message string) {
	if e.verbosity >= 1 {
		pterm.Info.Println(message)
	}
}
