// Package diag provides the log destination every other package writes
// to through a plain *log.Logger. The teacher repo declares a dependency
// on lumberjack but never constructs one; this package is where that
// dependency actually gets exercised, giving a long-running node a
// rotating log file instead of an unbounded one.
package diag

import (
	"io"
	"log"
	"os"

	"github.com/natefinch/lumberjack"
)

// FileConfig configures the rotating log file a Node's diagnostics are
// written to.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (c FileConfig) withDefaults() FileConfig {
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 3
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 28
	}
	return c
}

// NewFileLogger returns a *log.Logger backed by a lumberjack rotating
// file at cfg.Path, tagged with prefix. Closing the returned io.Closer
// flushes and releases the underlying file.
func NewFileLogger(cfg FileConfig, prefix string) (*log.Logger, io.Closer) {
	cfg = cfg.withDefaults()
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return log.New(lj, prefix, log.LstdFlags), lj
}

// NewStderrLogger returns a plain stderr logger for short-lived runs
// (tests, example programs) where log rotation would add nothing.
func NewStderrLogger(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}
