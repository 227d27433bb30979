package obs

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	loggerOnce sync.Once
	logger     zerolog.Logger
)

// Logger returns the shared structured logger used across the service.
// Production emits JSON to stdout; anything else gets the console writer.
func Logger() zerolog.Logger {
	loggerOnce.Do(func() {
		logger = newLogger(os.Getenv("SUNNAH_ENVIRONMENT"))
	})
	return logger
}

func newLogger(environment string) zerolog.Logger {
	if environment == "" {
		environment = "development"
	}
	var l zerolog.Logger
	if environment == "production" {
		l = zerolog.New(os.Stdout)
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return l.With().
		Timestamp().
		Str("service", "sunnah-auth").
		Str("env", environment).
		Logger()
}
