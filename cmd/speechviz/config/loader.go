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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global SpeechvizConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable. The
// first call reads (and on first run creates) the config file; later
// calls are no-ops.
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

// Path returns the config file location, honoring SPEECHVIZ_CONFIG.
func Path() (string, error) {
	if p := os.Getenv("SPEECHVIZ_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".speechviz", "speechviz.yaml"), nil
}

func loadInternal() error {
	configPath, err := Path()
	if err != nil {
		return err
	}
	// create it if it doesn't exist
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf(" First run detected, creating the config at %s\n", configPath)
		if err := createDefault(configPath); err != nil {
			return err
		}
	}
	// read the file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read the config file %w", err)
	}
	// parse the config into the Global struct
	if err = yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to unmarshal the config to the Global singleton: %w", err)
	}
	applyEnvOverrides(&Global)
	return nil
}

// applyEnvOverrides lets environment variables win over file values so
// containerized deployments can skip editing the yaml.
func applyEnvOverrides(cfg *SpeechvizConfig) {
	if v := os.Getenv("SPEECHVIZ_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SPEECHVIZ_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SPEECHVIZ_API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := os.Getenv("SPEECHVIZ_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SPEECHVIZ_WATCH_DIR"); v != "" {
		cfg.Watch.Dir = v
	}
	if v := os.Getenv("SPEECHVIZ_SEARCH_URL"); v != "" {
		cfg.Search.Enabled = true
		cfg.Search.URL = v
	}
	if v := os.Getenv("SPEECHVIZ_MEDIA_DIR"); v != "" {
		cfg.Assist.MediaDir = v
	}
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	defaultCfg := DefaultConfig()
	data, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
