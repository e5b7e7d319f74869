// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evfinkn/speechviz-sub000/cmd/speechviz/config"
	"github.com/evfinkn/speechviz-sub000/pkg/logging"
	"github.com/evfinkn/speechviz-sub000/services/annotate"
	"github.com/evfinkn/speechviz-sub000/services/annotate/store"
)

// cliContext bundles what an offline command needs: the service over a
// directly opened store, plus cleanup.
type cliContext struct {
	svc    *annotate.Service
	store  *store.Store
	logger *logging.Logger
}

// openCLI opens the document store from the loaded config and builds a
// service over it. Offline commands hold the store lock, so they fail
// fast when the server is running against the same store directory.
// quiet suppresses stderr logging for commands that own the terminal;
// their records still reach the log file when one is configured.
func openCLI(quiet bool) (*cliContext, error) {
	cfg := config.Global

	logger := logging.New(logging.Config{
		Level:   logging.LevelWarn, // CLI output goes to stdout, keep logs quiet
		Service: "cli",
		Quiet:   quiet,
		LogDir:  cfg.Logging.Dir,
	})

	storeCfg := store.DefaultConfig()
	storeCfg.Path = cfg.Store.Path
	storeCfg.SyncWrites = cfg.Store.SyncWrites
	storeCfg.Logger = logger.Slog()
	st, err := store.Open(storeCfg)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("open store at %s (is the server running?): %w", cfg.Store.Path, err)
	}

	svc := annotate.NewService(st, annotate.DefaultServiceConfig(),
		annotate.WithLogger(logger.Slog()))
	return &cliContext{svc: svc, store: st, logger: logger}, nil
}

// close shuts the session cache and the store down, logging rather than
// returning errors since commands are already exiting.
func (c *cliContext) close() {
	if err := c.svc.CloseAll(context.Background()); err != nil {
		slog.Warn("sessions not fully closed", "error", err)
	}
	if err := c.store.Close(); err != nil {
		slog.Warn("store not cleanly closed", "error", err)
	}
	c.logger.Close()
}
