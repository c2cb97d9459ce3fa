package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts.
const (
	VerbosityUser  = 0 // No flags: warnings and errors, plus run summaries
	VerbosityInfo  = 1 // -v: + progress per client and page
	VerbosityDebug = 2 // -vv: + per-request and per-row detail
)

// VerbosityToLevel maps verbosity flags (-v, -vv) to zap log levels.
// Unattended runs default to info so the run log stays useful.
//
//	0 (none) -> InfoLevel
//	1 (-v)   -> InfoLevel
//	2+ (-vv) -> DebugLevel
func VerbosityToLevel(verbosity int) zapcore.Level {
	if verbosity >= VerbosityDebug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
