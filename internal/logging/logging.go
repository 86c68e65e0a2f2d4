// Package logging sets up the process-wide zerolog logger.
package logging

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures zerolog with console output (or a file, if logPath is
// non-empty) and the given level, and redirects the standard library
// logger through it so every log call in the process lands in one place.
func Init(logPath, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	w := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			log.Logger = log.Output(f).With().Timestamp().Logger()
		} else {
			fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logPath, err)
			log.Logger = log.Output(w).With().Timestamp().Logger()
		}
	} else {
		log.Logger = log.Output(w).With().Timestamp().Logger()
	}

	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)

	return log.Logger
}
