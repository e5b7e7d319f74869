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
)

// SpeechvizConfig is the top-level configuration for the annotation
// tool. It is loaded once from ~/.speechviz/speechviz.yaml and held in
// the Global singleton.
type SpeechvizConfig struct {
	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Store configures the embedded document database.
	Store StoreConfig `yaml:"store"`

	// Watch configures the annotation directory watcher.
	Watch WatchConfig `yaml:"watch"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Search configures the optional transcript search backend.
	Search SearchConfig `yaml:"search"`

	// Assist configures the optional transcription/labeling backend.
	Assist AssistConfig `yaml:"assist"`

	// Sink configures the optional edit telemetry sink.
	Sink SinkConfig `yaml:"sink"`

	// Archive configures the optional export archive bucket.
	Archive ArchiveConfig `yaml:"archive"`
}

type ServerConfig struct {
	Host string `yaml:"host"` // e.g. 127.0.0.1
	Port int    `yaml:"port"` // e.g. 8077

	// APIToken enables bearer-token auth on the API when non-empty.
	APIToken string `yaml:"api_token,omitempty"`

	// MaxOpenDocuments bounds how many sessions stay in memory.
	MaxOpenDocuments int `yaml:"max_open_documents"`
}

type StoreConfig struct {
	// Path is the BadgerDB directory. Defaults under ~/.speechviz.
	Path string `yaml:"path"`

	// SyncWrites makes every write durable before returning.
	SyncWrites bool `yaml:"sync_writes"`
}

type WatchConfig struct {
	// Dir is the directory scanned for annotation JSON files.
	// Empty disables the watcher.
	Dir string `yaml:"dir,omitempty"`

	// DebounceMs is how long to sit on a burst of file events before
	// importing.
	DebounceMs int `yaml:"debounce_ms"`
}

type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Dir enables file logging when set.
	Dir string `yaml:"dir,omitempty"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`
}

type SearchConfig struct {
	Enabled bool `yaml:"enabled"`

	// URL of the Weaviate instance, e.g. http://localhost:8080.
	URL string `yaml:"url,omitempty"`
}

type AssistConfig struct {
	Enabled bool `yaml:"enabled"`

	// APIKeyFile points at a file holding the OpenAI API key. The
	// OPENAI_API_KEY environment variable takes precedence.
	APIKeyFile string `yaml:"api_key_file,omitempty"`

	// MediaDir is where audio files live, matched to documents by name.
	MediaDir string `yaml:"media_dir,omitempty"`

	// ChatModel overrides the labeling model.
	ChatModel string `yaml:"chat_model,omitempty"`
}

type SinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	Token   string `yaml:"token,omitempty"`
	Org     string `yaml:"org,omitempty"`
	Bucket  string `yaml:"bucket,omitempty"`
}

type ArchiveConfig struct {
	Enabled bool `yaml:"enabled"`

	// Bucket is the GCS bucket for exported annotation files.
	Bucket string `yaml:"bucket,omitempty"`

	// Prefix is the object name prefix inside the bucket.
	Prefix string `yaml:"prefix,omitempty"`

	// CredentialsFile is an optional service account key path.
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// DefaultConfig returns the first-run configuration: a localhost server
// over a store under the user's home directory, optional integrations
// disabled.
func DefaultConfig() SpeechvizConfig {
	storePath := "speechviz-store"
	watchDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		storePath = filepath.Join(home, ".speechviz", "store")
		watchDir = filepath.Join(home, ".speechviz", "annotations")
	}
	return SpeechvizConfig{
		Server: ServerConfig{
			Host:             "127.0.0.1",
			Port:             8077,
			MaxOpenDocuments: 16,
		},
		Store: StoreConfig{
			Path:       storePath,
			SyncWrites: true,
		},
		Watch: WatchConfig{
			Dir:        watchDir,
			DebounceMs: 250,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Search:  SearchConfig{Enabled: false, URL: "http://localhost:8080"},
		Assist:  AssistConfig{Enabled: false},
		Sink:    SinkConfig{Enabled: false},
		Archive: ArchiveConfig{Enabled: false, Prefix: "annotations"},
	}
}
