// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive uploads exported annotation payloads to a GCS bucket.
// Each upload lands under a per-document, timestamped object name, so
// the bucket doubles as a crude save history.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Config configures the archive uploader.
type Config struct {
	// Bucket is the GCS bucket name.
	Bucket string

	// Prefix is the object name prefix inside the bucket.
	// Default: "annotations"
	Prefix string

	// CredentialsFile is the service account key path. Empty uses
	// application default credentials.
	CredentialsFile string

	// Logger for uploads. Default: slog.Default()
	Logger *slog.Logger
}

// Uploader writes export payloads into a GCS bucket.
type Uploader struct {
	client *storage.Client
	config Config
	logger *slog.Logger
}

// New creates an uploader. With a CredentialsFile set, the file must
// exist; otherwise application default credentials apply.
func New(ctx context.Context, config Config) (*Uploader, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}
	if config.Prefix == "" {
		config.Prefix = "annotations"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		if _, err := os.Stat(config.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at %s", config.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &Uploader{
		client: client,
		config: config,
		logger: config.Logger.With("component", "archive"),
	}, nil
}

// Upload writes one export payload for the document. Returns the object
// name written.
func (u *Uploader) Upload(ctx context.Context, document string, data []byte) (string, error) {
	name := objectName(u.config.Prefix, document, time.Now().UTC())

	writer := u.client.Bucket(u.config.Bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return "", fmt.Errorf("write gs://%s/%s: %w", u.config.Bucket, name, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close gs://%s/%s: %w", u.config.Bucket, name, err)
	}

	u.logger.Info("export archived",
		"document", document, "object", name, "bytes", len(data))
	return name, nil
}

// Close releases the storage client.
func (u *Uploader) Close() error {
	return u.client.Close()
}

// objectName builds the timestamped object name for one upload.
func objectName(prefix, document string, t time.Time) string {
	return path.Join(prefix, document, t.Format("20060102T150405Z")+".json")
}
