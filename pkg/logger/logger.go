// Package logger provides the Twine compiler's logging layer: a thin wrapper
// over log/slog tuned to the three-stage pipeline (lex, parse, emit) plus the
// external toolchain steps the driver runs.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// log is the package logger. It discards everything until Setup runs, so
// embedding pkg/frontend or pkg/codegen as a library stays silent.
var log = slog.New(slog.NewTextHandler(io.Discard, nil))

// Setup routes compiler logging to w. Verbose enables debug-level records
// (per-stage counters, toolchain command lines) with source positions;
// otherwise only info and above are emitted.
func Setup(w io.Writer, verbose bool) {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	}))
}

// Debug logs a debug message
func Debug(msg string, args ...any) { log.Debug(msg, args...) }

// Info logs an info message
func Info(msg string, args ...any) { log.Info(msg, args...) }

// Warn logs a warning message
func Warn(msg string, args ...any) { log.Warn(msg, args...) }

// Error logs an error message
func Error(msg string, args ...any) { log.Error(msg, args...) }

// Compiler-specific logging helpers

// LogPhase logs the start of a compilation phase
func LogPhase(phase string) {
	Info("Starting compilation phase", "phase", phase)
}

// LogLexing logs lexing activity
func LogLexing(file string, tokenCount int, diagCount int) {
	Debug("Lexing complete", "file", file, "tokens", tokenCount, "diagnostics", diagCount)
}

// LogParsing logs parsing activity
func LogParsing(file string, stmtCount int, diagCount int) {
	Debug("Parsing complete", "file", file, "statements", stmtCount, "diagnostics", diagCount)
}

// LogEmission logs IR emission
func LogEmission(module string, funcCount int) {
	Debug("IR emission complete", "module", module, "functions", funcCount)
}

// LogCompilerStart logs compiler startup
func LogCompilerStart(args []string) {
	Info("Twine compiler starting", "args", args)
}

// LogCompilerComplete logs compiler completion
func LogCompilerComplete(success bool, duration string) {
	if success {
		Info("Compilation successful", "duration", duration)
	} else {
		Error("Compilation failed", "duration", duration)
	}
}

// LogToolchain logs an external toolchain invocation
func LogToolchain(tool string, args []string) {
	Debug("Invoking external tool", "tool", tool, "args", args)
}
