package obs

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the shared structured logger. Local runs get a console
// writer, everything else emits JSON lines to stdout.
func NewLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
