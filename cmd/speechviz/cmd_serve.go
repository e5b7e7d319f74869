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
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/evfinkn/speechviz-sub000/cmd/speechviz/config"
	"github.com/evfinkn/speechviz-sub000/pkg/extensions"
	"github.com/evfinkn/speechviz-sub000/pkg/logging"
	"github.com/evfinkn/speechviz-sub000/pkg/validation"
	"github.com/evfinkn/speechviz-sub000/services/annotate"
	"github.com/evfinkn/speechviz-sub000/services/annotate/assist"
	"github.com/evfinkn/speechviz-sub000/services/annotate/search"
	"github.com/evfinkn/speechviz-sub000/services/annotate/sink"
	"github.com/evfinkn/speechviz-sub000/services/annotate/store"
	"github.com/evfinkn/speechviz-sub000/services/annotate/telemetry"
	"github.com/evfinkn/speechviz-sub000/services/annotate/watch"
)

// runServe starts the annotation HTTP service and blocks until a
// shutdown signal arrives.
func runServe(cmd *cobra.Command, args []string) {
	cfg := config.Global
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveWatchDir != "" {
		cfg.Watch.Dir = serveWatchDir
	}

	logger := logging.New(logging.Config{
		Level:   parseLogLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "annotate",
		JSON:    cfg.Logging.JSON,
	})
	defer logger.Close()
	slogger := logger.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		log.Fatalf("Error initializing telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slogger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	storeCfg := store.DefaultConfig()
	storeCfg.Path = cfg.Store.Path
	storeCfg.SyncWrites = cfg.Store.SyncWrites
	storeCfg.Logger = slogger
	st, err := store.Open(storeCfg)
	if err != nil {
		log.Fatalf("Error opening document store at %s: %v", cfg.Store.Path, err)
	}
	defer st.Close()

	opts := []annotate.ServiceOption{annotate.WithLogger(slogger)}

	var searchClient *search.Client
	if cfg.Search.Enabled {
		searchCfg := search.DefaultClientConfig()
		searchCfg.URL = cfg.Search.URL
		searchCfg.Logger = slogger
		searchClient, err = search.NewClient(searchCfg)
		if err != nil {
			log.Fatalf("Error connecting to search backend: %v", err)
		}
		defer searchClient.Close()
		opts = append(opts, annotate.WithSearch(search.NewIndex(searchClient, slogger)))
	}

	if cfg.Assist.Enabled {
		assistCfg := assist.DefaultConfig()
		assistCfg.APIKeyFile = cfg.Assist.APIKeyFile
		assistCfg.MediaDir = cfg.Assist.MediaDir
		if cfg.Assist.ChatModel != "" {
			assistCfg.ChatModel = cfg.Assist.ChatModel
		}
		assistCfg.Logger = slogger
		assistClient, err := assist.New(assistCfg)
		if err != nil {
			log.Fatalf("Error configuring assist backend: %v", err)
		}
		opts = append(opts, annotate.WithAssist(assistClient))
	}

	svcCfg := annotate.DefaultServiceConfig()
	if cfg.Server.MaxOpenDocuments > 0 {
		svcCfg.MaxOpenDocuments = cfg.Server.MaxOpenDocuments
	}
	svc := annotate.NewService(st, svcCfg, opts...)

	var editSink *sink.Sink
	if cfg.Sink.Enabled {
		sinkCfg := sink.DefaultConfig()
		sinkCfg.URL = cfg.Sink.URL
		sinkCfg.Token = cfg.Sink.Token
		sinkCfg.Org = cfg.Sink.Org
		sinkCfg.Bucket = cfg.Sink.Bucket
		sinkCfg.Logger = slogger
		editSink, err = sink.New(ctx, sinkCfg)
		if err != nil {
			slogger.Warn("edit sink unavailable, continuing without it", "error", err)
		} else {
			editSink.Attach(svc.Events())
			defer editSink.Close()
		}
	}

	ext := extensions.Default()
	if cfg.Server.APIToken != "" {
		tokenProvider := extensions.NewStaticTokenProvider(cfg.Server.APIToken)
		defer tokenProvider.Destroy()
		ext.Auth = tokenProvider
	}
	ext.Audit = extensions.NewSlogAuditLogger(slogger)

	router := buildRouter(svc, ext, cfg.Server.APIToken != "")

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slogger.Info("annotation service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Watch.Dir != "" {
		watcher, err := newImportWatcher(cfg, svc, slogger)
		if err != nil {
			slogger.Warn("annotation watcher disabled", "dir", cfg.Watch.Dir, "error", err)
		} else {
			group.Go(func() error {
				if err := watcher.Start(gctx); err != nil {
					return fmt.Errorf("watcher: %w", err)
				}
				<-gctx.Done()
				watcher.Stop()
				return nil
			})
		}
	}

	group.Go(func() error {
		<-gctx.Done()
		slogger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return svc.CloseAll(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Error running annotation service: %v", err)
	}
}

// buildRouter assembles the gin engine: tracing middleware, optional
// bearer auth, the annotation API under /v1, and the metrics endpoint.
func buildRouter(svc *annotate.Service, ext extensions.ServiceExtensions, requireAuth bool) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("speechviz-annotate"))

	if engine, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// Registration only fails for a nil engine.
		_ = validation.RegisterTimeRange(engine)
	}

	v1 := router.Group("/v1")
	if requireAuth {
		v1.Use(authMiddleware(ext.Auth))
	}
	v1.Use(auditMiddleware(ext.Audit))
	annotate.RegisterRoutes(v1, annotate.NewHandlers(svc))

	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	return router
}

// authMiddleware validates the Authorization bearer token on every
// request. Websocket upgrades also pass the token via query parameter
// because browsers cannot set headers on websocket connections.
func authMiddleware(auth extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		info, err := auth.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("user", info)
		c.Next()
	}
}

// auditMiddleware records destructive requests after they complete.
// Only successful deletes are recorded; a rejected request changed
// nothing worth auditing.
func auditMiddleware(audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.Method != http.MethodDelete || c.Writer.Status() >= 400 {
			return
		}
		rec := extensions.AuditRecord{
			Document: c.Param("name"),
			Action:   "delete",
		}
		if user, ok := c.Get("user"); ok {
			if info, ok := user.(*extensions.AuthInfo); ok {
				rec.UserID = info.UserID
			}
		}
		_ = audit.Record(c.Request.Context(), rec)
	}
}

// newImportWatcher wires the filesystem watcher to the service: changed
// annotation files are re-imported, removed files delete the document.
func newImportWatcher(cfg config.SpeechvizConfig, svc *annotate.Service, logger *slog.Logger) (*watch.Watcher, error) {
	handler := func(changes []watch.Change) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, change := range changes {
			if change.Removed {
				if err := svc.Delete(ctx, change.Document); err != nil {
					logger.Warn("watched document not deleted",
						"document", change.Document, "error", err)
				}
				continue
			}
			data, err := os.ReadFile(change.Path)
			if err != nil {
				logger.Warn("watched file unreadable", "path", change.Path, "error", err)
				continue
			}
			if _, err := svc.Import(ctx, change.Document, data); err != nil {
				logger.Warn("watched file not imported",
					"document", change.Document, "error", err)
				continue
			}
			logger.Info("watched file imported", "document", change.Document)
		}
	}

	opts := watch.DefaultOptions()
	opts.Logger = logger
	if cfg.Watch.DebounceMs > 0 {
		opts.DebounceWindow = time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
	}
	return watch.New(cfg.Watch.Dir, handler, &opts)
}

// parseLogLevel maps the config's level string onto the logging package
// levels, defaulting to info.
func parseLogLevel(level string) logging.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
