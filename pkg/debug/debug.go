// Package debug provides conditional debug logging for attnguard.
//
// Debug logging is enabled by setting the ATTN_DEBUG environment
// variable:
//
//	ATTN_DEBUG=1 attn
//
// When enabled, debug messages are written to stderr with timestamps.
// When disabled (default), all debug functions are no-ops with zero
// overhead. Debug output is the only logging in this codebase.
package debug

import (
	"log"
	"os"
	"time"
)

var (
	// enabled is true when the ATTN_DEBUG env var is set
	enabled bool
	// logger writes to stderr with [ATTN] prefix
	logger *log.Logger
)

func init() {
	if os.Getenv("ATTN_DEBUG") != "" {
		enabled = true
		logger = log.New(os.Stderr, "[ATTN] ", log.Ltime|log.Lmicroseconds)
	}
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	return enabled
}

// SetEnabled allows programmatic control of debug logging.
func SetEnabled(e bool) {
	enabled = e
	if e && logger == nil {
		logger = log.New(os.Stderr, "[ATTN] ", log.Ltime|log.Lmicroseconds)
	}
}

// Log writes a debug message if debug logging is enabled.
// Uses printf-style formatting.
func Log(format string, args ...any) {
	if !enabled {
		return
	}
	logger.Printf(format, args...)
}

// LogTiming writes a timing message if debug logging is enabled.
func LogTiming(name string, d time.Duration) {
	if !enabled {
		return
	}
	logger.Printf("%s took %v", name, d)
}

// Dump logs a value with its type for debugging complex structures.
func Dump(name string, v any) {
	if !enabled {
		return
	}
	logger.Printf("%s: %T = %+v", name, v, v)
}
