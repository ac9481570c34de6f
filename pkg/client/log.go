package client

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// Subsystem tags.
const (
	SubsysClient     = "TCLI"
	SubsysReconciler = "RECN"
	SubsysSession    = "SESS"
	SubsysAnimation  = "ANIM"
	SubsysActions    = "ACTN"
)

// LogBackend owns the rotated log file and hands out per-subsystem loggers
// that share a level.
type LogBackend struct {
	mtx     sync.Mutex
	rotator *rotator.Rotator
	backend *slog.Backend
	level   slog.Level
	loggers map[string]slog.Logger
}

type logWriter struct {
	rotator *rotator.Rotator
	echo    io.Writer
}

func (w logWriter) Write(p []byte) (int, error) {
	if w.echo != nil {
		w.echo.Write(p)
	}
	if w.rotator != nil {
		w.rotator.Write(p)
	}
	return len(p), nil
}

// NewLogBackend opens logFile (rotating after defaultMaxLogSizeKB, keeping
// maxFiles rolls) and parses debugLevel. echo, when non-nil, also receives
// every line; a TUI passes nil so the screen is not garbled.
func NewLogBackend(logFile, debugLevel string, maxFiles int, echo io.Writer) (*LogBackend, error) {
	level, ok := slog.LevelFromString(debugLevel)
	if !ok {
		return nil, fmt.Errorf("invalid debug level %q", debugLevel)
	}
	if maxFiles <= 0 {
		maxFiles = defaultMaxLogFiles
	}

	var r *rotator.Rotator
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		var err error
		r, err = rotator.New(logFile, defaultMaxLogSizeKB, false, maxFiles)
		if err != nil {
			return nil, fmt.Errorf("failed to create file rotator: %w", err)
		}
	}

	return &LogBackend{
		rotator: r,
		backend: slog.NewBackend(logWriter{rotator: r, echo: echo}),
		level:   level,
		loggers: make(map[string]slog.Logger),
	}, nil
}

// Logger returns the logger for subsys, creating it on first use.
func (lb *LogBackend) Logger(subsys string) slog.Logger {
	lb.mtx.Lock()
	defer lb.mtx.Unlock()
	if l, ok := lb.loggers[subsys]; ok {
		return l
	}
	l := lb.backend.Logger(subsys)
	l.SetLevel(lb.level)
	lb.loggers[subsys] = l
	return l
}

// SetLevel changes the level of every logger handed out so far and of
// those created later.
func (lb *LogBackend) SetLevel(debugLevel string) error {
	level, ok := slog.LevelFromString(debugLevel)
	if !ok {
		return fmt.Errorf("invalid debug level %q", debugLevel)
	}
	lb.mtx.Lock()
	defer lb.mtx.Unlock()
	lb.level = level
	for _, l := range lb.loggers {
		l.SetLevel(level)
	}
	return nil
}

// Close flushes and closes the log file.
func (lb *LogBackend) Close() error {
	if lb.rotator == nil {
		return nil
	}
	return lb.rotator.Close()
}
