// certusage - find where a TLS certificate is in use.
// Resolve. Scan. Report.
package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	os.Exit(Execute())
}

// setupLogging configures the global logger. --debug wins over the configured level.
func setupLogging(debug bool, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	switch {
	case debug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		lvl, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil || level == "" {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
