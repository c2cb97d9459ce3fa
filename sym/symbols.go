// Package sym defines canonical symbols for paysync commands and log segments.
// These symbols are stable across CLI output and structured logs.
package sym

// Command symbols.
const (
	AM = "≡" // am: configuration and system settings
	IX = "⨳" // ix: ingest from the payroll API
	DB = "⊔" // db: storage layer
)

// System infrastructure symbols.
const (
	Pulse      = "꩜" // scheduling and refresh cadence
	PulseOpen  = "✿" // run start
	PulseClose = "❀" // run finish
)

// SymbolToCommand maps glyph strings to their text command equivalents.
var SymbolToCommand = map[string]string{
	AM: "am",
	IX: "run",
	DB: "db",
}

// CommandToSymbol maps text commands to their canonical glyph strings.
// The CLI registers each glyph as an alias, so `paysync ⨳ check` works.
var CommandToSymbol = map[string]string{
	"am":  AM,
	"run": IX,
	"db":  DB,
}
