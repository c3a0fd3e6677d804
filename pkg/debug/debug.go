// Package debug provides category-scoped debug logging.
//
// Verbosity is controlled on two axes: which subsystems emit debug
// output (WERKZEUG_DEBUG, a comma-separated category list or "all")
// and how much detail each line carries (WERKZEUG_LOG_LEVEL, up to
// TRACE which includes full command output).
//
//	debug.Log("sandbox", "command issued", "name", name, "command", cmd)
//	if debug.Enabled("sandbox") { /* expensive formatting */ }
//
// Known categories: sandbox, reachability, messaging, registry,
// storage, auth, server, config.
package debug

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog.LevelDebug. At TRACE, full untruncated
// command output and HTTP bodies are logged.
const LevelTrace = slog.LevelDebug - 4

// categories is written once by Init and read everywhere else.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv("WERKZEUG_DEBUG"))
}

// Init applies category and level settings at startup. Environment
// variables win over the config file values passed in.
func Init(configCategories string, configLevel string) {
	cats := os.Getenv("WERKZEUG_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)

	level := os.Getenv("WERKZEUG_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})))
}

// Enabled reports whether debug output is active for the category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message when the category is enabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message when the category is enabled.
// Visible only at WERKZEUG_LOG_LEVEL=TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(nil, LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether trace output would be emitted for the
// category, for guarding expensive formatting.
func TraceIsEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(nil, LevelTrace)
}

// Raw writes plain text to stderr with no slog framing, for
// copy-paste-ready dumps of command output. Requires the category to
// be enabled at TRACE.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(os.Stderr, text)
}

// ParseLevel converts a level name to a slog.Level. Unknown or empty
// names mean INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Truncate shortens s to maxLen characters, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
