package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. Console output goes to stderr so stdout
// stays clean for command output (and for the MCP stdio transport).
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return newWriter(os.Stderr).Level(lvl)
}

// NewNop returns a disabled logger for tests.
func NewNop() zerolog.Logger {
	return zerolog.Nop()
}

func newWriter(out io.Writer) zerolog.Logger {
	console := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(console).With().Timestamp().Logger()
}
