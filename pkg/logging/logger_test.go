// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevelString(t *testing.T) {
	cases := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "UNKNOWN"},
	}
	for _, tc := range cases {
		if got := tc.level.String(); got != tc.want {
			t.Errorf("Level(%d).String() = %q, want %q", tc.level, got, tc.want)
		}
	}
}

// readLogFile returns the contents of the single dated log file New
// creates for a service under dir.
func readLogFile(t *testing.T, dir, service string) string {
	t.Helper()
	name := service + "_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(data)
}

func TestNew_FileLogging(t *testing.T) {
	t.Run("records land in a dated json file", func(t *testing.T) {
		dir := t.TempDir()
		logger := New(Config{Quiet: true, LogDir: dir, Service: "annotate"})
		logger.Slog().Info("document imported", "document", "interview-04")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		line := readLogFile(t, dir, "annotate")
		var rec map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &rec); err != nil {
			t.Fatalf("file record is not json: %v\n%s", err, line)
		}
		if rec["msg"] != "document imported" {
			t.Errorf("msg = %v, want document imported", rec["msg"])
		}
		if rec["document"] != "interview-04" {
			t.Errorf("document = %v, want interview-04", rec["document"])
		}
		if rec["service"] != "annotate" {
			t.Errorf("service = %v, want annotate", rec["service"])
		}
	})

	t.Run("records below the level are dropped", func(t *testing.T) {
		dir := t.TempDir()
		logger := New(Config{Level: LevelWarn, Quiet: true, LogDir: dir, Service: "cli"})
		logger.Slog().Info("chatty")
		logger.Slog().Warn("store lock contended")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		content := readLogFile(t, dir, "cli")
		if strings.Contains(content, "chatty") {
			t.Error("info record survived a warn-level logger")
		}
		if !strings.Contains(content, "store lock contended") {
			t.Error("warn record missing from the log file")
		}
	})

	t.Run("tilde expands to the home directory", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		logger := New(Config{Quiet: true, LogDir: "~/logs", Service: "tui"})
		logger.Slog().Warn("resize ignored")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		readLogFile(t, filepath.Join(home, "logs"), "tui")
	})

	t.Run("unwritable log dir degrades instead of failing", func(t *testing.T) {
		blocked := filepath.Join(t.TempDir(), "occupied")
		if err := os.WriteFile(blocked, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
		logger := New(Config{Quiet: true, LogDir: filepath.Join(blocked, "logs")})
		logger.Slog().Info("still works")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close after failed file open: %v", err)
		}
	})

	t.Run("quiet with no log dir discards records", func(t *testing.T) {
		logger := New(Config{Quiet: true})
		logger.Slog().Error("nowhere to go")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		logger := New(Config{Quiet: true, LogDir: t.TempDir()})
		if err := logger.Close(); err != nil {
			t.Fatalf("first Close: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Fatalf("second Close: %v", err)
		}
	})
}

func TestTeeHandler(t *testing.T) {
	t.Run("every destination gets the record", func(t *testing.T) {
		var text, jsonBuf bytes.Buffer
		tee := &teeHandler{handlers: []slog.Handler{
			slog.NewTextHandler(&text, nil),
			slog.NewJSONHandler(&jsonBuf, nil),
		}}
		slog.New(tee).Info("segment moved", "from", "VAD", "to", "Speaker 1")

		if !strings.Contains(text.String(), "segment moved") {
			t.Error("text destination missed the record")
		}
		if !strings.Contains(jsonBuf.String(), `"from":"VAD"`) {
			t.Errorf("json destination missed the record: %s", jsonBuf.String())
		}
	})

	t.Run("per-destination levels are respected", func(t *testing.T) {
		var verbose, terse bytes.Buffer
		tee := &teeHandler{handlers: []slog.Handler{
			slog.NewTextHandler(&verbose, &slog.HandlerOptions{Level: slog.LevelDebug}),
			slog.NewTextHandler(&terse, &slog.HandlerOptions{Level: slog.LevelWarn}),
		}}
		logger := slog.New(tee)
		logger.Debug("tracing toggle")
		logger.Warn("watcher backlog")

		if !strings.Contains(verbose.String(), "tracing toggle") {
			t.Error("debug destination missed the debug record")
		}
		if strings.Contains(terse.String(), "tracing toggle") {
			t.Error("warn destination received a debug record")
		}
		if !strings.Contains(terse.String(), "watcher backlog") {
			t.Error("warn destination missed the warn record")
		}
	})

	t.Run("attrs added through the tee reach all destinations", func(t *testing.T) {
		var a, b bytes.Buffer
		var tee slog.Handler = &teeHandler{handlers: []slog.Handler{
			slog.NewTextHandler(&a, nil),
			slog.NewTextHandler(&b, nil),
		}}
		tee = tee.WithAttrs([]slog.Attr{slog.String("service", "annotate")})
		slog.New(tee).Info("saved")

		for name, buf := range map[string]*bytes.Buffer{"first": &a, "second": &b} {
			if !strings.Contains(buf.String(), "service=annotate") {
				t.Errorf("%s destination missing the service attr: %s", name, buf.String())
			}
		}
	})
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cases := []struct {
		in   string
		want string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"/var/log/speechviz", "/var/log/speechviz"},
		{"relative/logs", "relative/logs"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := expandHome(tc.in); got != tc.want {
			t.Errorf("expandHome(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
