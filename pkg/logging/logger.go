// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging builds the slog loggers the speechviz binaries run on.
//
// Every process gets the same shape: records go to stderr (text by
// default, JSON for machine consumption) and optionally to a dated JSON
// file under a log directory. The server writes both so a crash leaves a
// file behind; offline commands keep stderr only; the tui suppresses
// stderr entirely because it owns the terminal, and logs to file when a
// log directory is configured.
//
// Callers log through the *slog.Logger returned by Slog. The Logger
// wrapper only exists to own the file handle:
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.speechviz/logs",
//	    Service: "annotate",
//	})
//	defer logger.Close()
//	logger.Slog().Info("document imported", "document", name)
//
// Records never carry redaction: tokens and API keys must not be passed
// as attribute values.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Level is the minimum severity a logger lets through.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the conventional upper-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config selects the destinations and format for New. The zero value
// logs Info and above to stderr as text.
type Config struct {
	// Level is the minimum level; records below it are dropped.
	Level Level

	// LogDir, when set, adds a {service}_{date}.log JSON file in that
	// directory. A leading ~ expands to the home directory and the
	// directory is created if missing.
	LogDir string

	// Service is stamped on every record as the "service" attribute
	// and names the log file. Defaults to "speechviz" for the file.
	Service string

	// JSON switches stderr from text to JSON. File output is always
	// JSON regardless.
	JSON bool

	// Quiet drops the stderr destination. With no LogDir either,
	// records are discarded.
	Quiet bool
}

// Logger owns the destinations behind a slog.Logger, in particular the
// log file handle. Safe for concurrent use; Close must be called once
// when the process is done logging to file.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

// New builds a Logger for the given config. Failure to open the log
// file or create its directory is not fatal: the logger falls back to
// its remaining destinations and reports the problem on them.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}
	l := &Logger{}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	var fileErr error
	if cfg.LogDir != "" {
		file, err := openLogFile(cfg.LogDir, cfg.Service)
		if err != nil {
			fileErr = err
		} else {
			l.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &teeHandler{handlers: handlers}
	}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	l.slog = slog.New(handler)
	if fileErr != nil {
		l.slog.Warn("file logging disabled", "dir", cfg.LogDir, "error", fileErr)
	}
	return l
}

// Slog returns the logger records are written through.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close syncs and closes the log file, if one is open.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	syncErr := l.file.Sync()
	closeErr := l.file.Close()
	l.file = nil
	return errors.Join(syncErr, closeErr)
}

// openLogFile opens (appending, creating as needed) the dated log file
// for a service under dir.
func openLogFile(dir, service string) (*os.File, error) {
	dir = expandHome(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if service == "" {
		service = "speechviz"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// expandHome rewrites a leading ~ to the home directory. Unexpandable
// paths pass through unchanged.
func expandHome(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// teeHandler fans each record out to every destination, so stderr can
// stay text while the file stays JSON.
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: out}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: out}
}
