// Package logging builds the application logger. The TUI owns the
// terminal, so log output goes to a file under the user config dir.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const logFileName = "shuzhai-t.log"

// Logger wraps the zap logger together with its teardown
type Logger struct {
	*zap.Logger
	restoreStdLog func()
}

// New creates a file-backed logger in dir. When debug is set the level
// drops to Debug and caller information is included.
func New(dir string, debug bool) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{filepath.Join(dir, logFileName)}
	cfg.ErrorOutputPaths = cfg.OutputPaths
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger:        log,
		restoreStdLog: zap.RedirectStdLog(log),
	}, nil
}

// Close flushes and restores the std logger
func (l *Logger) Close() error {
	var err error
	err = multierr.Append(err, l.Sync())
	if l.restoreStdLog != nil {
		l.restoreStdLog()
	}
	return err
}
