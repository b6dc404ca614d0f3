// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level  string
	File   string
	Pretty bool
	// Console receives output when File is empty. Defaults to stderr.
	Console io.Writer
}

// New returns a logger and a closer for the rotating file, if any.
func New(o Options) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(o.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	console := o.Console
	if console == nil {
		console = os.Stderr
	}
	if o.Pretty {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.DateTime}
	}

	var (
		out    io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if o.File != "" {
		if err := os.MkdirAll(filepath.Dir(o.File), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("logging: %w", err)
		}
		rot := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(console, rot)
		closer = rot
	}

	log := zerolog.New(out).Level(level).With().Timestamp().Str("app", "heartline").Logger()
	return log, closer, nil
}

// ParseLevel accepts zerolog level names; empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
	return lvl, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
