package monitoring

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	loggerMu sync.RWMutex
	logger   = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Logger returns the package-level diagnostic logger. It defaults to a
// timestamped JSON logger on stderr but may be replaced by SetLogger.
func Logger() zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetLogger replaces the package logger. Passing nil mutes logging.
func SetLogger(l *zerolog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if l == nil {
		logger = zerolog.Nop()
		return
	}
	logger = *l
}

// ParseLevel converts a level name such as "info" or "trace" into a zerolog
// level, falling back to info for an empty string.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(name)
}
