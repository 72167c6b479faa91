// Package sysutil holds small process-level helpers shared by the binaries.
package sysutil

import (
	"strings"

	"github.com/rs/zerolog"
)

// SetLogLevel configures the global zerolog level from a config string.
// "warning" is accepted as an alias for "warn"; empty or unknown values fall
// back to info so a typo in LOG_LEVEL never silences the process.
func SetLogLevel(lvl string) {
	v := strings.ToLower(strings.TrimSpace(lvl))
	if v == "warning" {
		v = "warn"
	}
	level, err := zerolog.ParseLevel(v)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
