// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestPath(t *testing.T) {
	t.Run("env var overrides default location", func(t *testing.T) {
		t.Setenv("SPEECHVIZ_CONFIG", "/tmp/custom.yaml")
		p, err := Path()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p != "/tmp/custom.yaml" {
			t.Errorf("got %q, want /tmp/custom.yaml", p)
		}
	})

	t.Run("defaults under home directory", func(t *testing.T) {
		t.Setenv("SPEECHVIZ_CONFIG", "")
		p, err := Path()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if filepath.Base(p) != "speechviz.yaml" {
			t.Errorf("got %q, want a speechviz.yaml path", p)
		}
	})
}

func TestCreateDefault(t *testing.T) {
	t.Run("writes parseable yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sub", "speechviz.yaml")
		if err := createDefault(path); err != nil {
			t.Fatalf("createDefault: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read config: %v", err)
		}
		var cfg SpeechvizConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if cfg.Server.Port != 8077 {
			t.Errorf("port = %d, want 8077", cfg.Server.Port)
		}
		if cfg.Store.Path == "" {
			t.Error("expected a default store path")
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("binds to localhost", func(t *testing.T) {
		if cfg.Server.Host != "127.0.0.1" {
			t.Errorf("host = %q, want 127.0.0.1", cfg.Server.Host)
		}
	})

	t.Run("optional integrations start disabled", func(t *testing.T) {
		if cfg.Search.Enabled || cfg.Assist.Enabled || cfg.Sink.Enabled || cfg.Archive.Enabled {
			t.Error("expected search, assist, sink and archive disabled by default")
		}
	})

	t.Run("watch debounce is positive", func(t *testing.T) {
		if cfg.Watch.DebounceMs <= 0 {
			t.Errorf("debounce_ms = %d, want > 0", cfg.Watch.DebounceMs)
		}
	})
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Run("server and store overrides apply", func(t *testing.T) {
		t.Setenv("SPEECHVIZ_HOST", "0.0.0.0")
		t.Setenv("SPEECHVIZ_PORT", "9000")
		t.Setenv("SPEECHVIZ_STORE_PATH", "/data/store")

		cfg := DefaultConfig()
		applyEnvOverrides(&cfg)

		if cfg.Server.Host != "0.0.0.0" {
			t.Errorf("host = %q, want 0.0.0.0", cfg.Server.Host)
		}
		if cfg.Server.Port != 9000 {
			t.Errorf("port = %d, want 9000", cfg.Server.Port)
		}
		if cfg.Store.Path != "/data/store" {
			t.Errorf("store path = %q, want /data/store", cfg.Store.Path)
		}
	})

	t.Run("bad port is ignored", func(t *testing.T) {
		t.Setenv("SPEECHVIZ_PORT", "not-a-port")
		cfg := DefaultConfig()
		applyEnvOverrides(&cfg)
		if cfg.Server.Port != 8077 {
			t.Errorf("port = %d, want 8077", cfg.Server.Port)
		}
	})

	t.Run("search url enables search", func(t *testing.T) {
		t.Setenv("SPEECHVIZ_SEARCH_URL", "http://weaviate:8080")
		cfg := DefaultConfig()
		applyEnvOverrides(&cfg)
		if !cfg.Search.Enabled {
			t.Error("expected search enabled")
		}
		if cfg.Search.URL != "http://weaviate:8080" {
			t.Errorf("url = %q, want http://weaviate:8080", cfg.Search.URL)
		}
	})
}
