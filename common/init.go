package common

import (
	"log"
	"os"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	level := zerolog.InfoLevel
	if v := os.Getenv("LB_LOG_LEVEL"); v != "" {
		if l, err := zerolog.ParseLevel(v); err == nil {
			level = l
		}
	}
	logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

func Logger() zerolog.Logger {
	return logger
}

// GetLogger adapts the base logger for consumers expecting a *log.Logger,
// e.g. httputil.ReverseProxy.ErrorLog.
func GetLogger() *log.Logger {
	return log.New(logger, "", 0)
}
