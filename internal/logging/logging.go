// Package logging builds the console's structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/opsdeck/console/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger for cfg and a closer for any file it opened.
//
// Logs go to cfg.File when set. Otherwise interactive commands, which own
// the terminal, get a discard handler, and everything else logs to stderr:
// text when stderr is a terminal, JSON when it is piped.
func New(cfg config.LogConfig, interactive bool) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	options := &slog.HandlerOptions{Level: level}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return slog.New(slog.NewJSONHandler(f, options)), f, nil
	}
	if interactive {
		return slog.New(slog.DiscardHandler), nopCloser{}, nil
	}
	return slog.New(newHandler(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), options)), nopCloser{}, nil
}

func newHandler(w io.Writer, tty bool, options *slog.HandlerOptions) slog.Handler {
	if tty {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}

// ParseLevel maps debug, info, warn and error to slog levels. Empty means
// info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}
