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
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/evfinkn/speechviz-sub000/cmd/speechviz/config"
	"github.com/evfinkn/speechviz-sub000/services/annotate/archive"
)

// runExport renders a document's current session as save JSON and
// writes it to a file, optionally uploading it to the archive bucket.
func runExport(cmd *cobra.Command, args []string) {
	name := args[0]

	cli, err := openCLI(false)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer cli.close()

	ctx := context.Background()
	data, err := cli.svc.Export(ctx, name)
	if err != nil {
		log.Fatalf("Error exporting %q: %v", name, err)
	}

	output := exportOutput
	if output == "" {
		output = name + ".json"
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		log.Fatalf("Error writing %s: %v", output, err)
	}
	fmt.Printf("exported %s to %s (%d bytes)\n", name, output, len(data))

	if exportArchive {
		if err := uploadExport(ctx, name, data); err != nil {
			log.Fatalf("Error archiving %q: %v", name, err)
		}
	}
}

// uploadExport pushes the export payload to the configured GCS bucket.
func uploadExport(ctx context.Context, name string, data []byte) error {
	cfg := config.Global.Archive
	if !cfg.Enabled || cfg.Bucket == "" {
		return fmt.Errorf("archive is not configured; set archive.enabled and archive.bucket")
	}
	uploader, err := archive.New(ctx, archive.Config{
		Bucket:          cfg.Bucket,
		Prefix:          cfg.Prefix,
		CredentialsFile: cfg.CredentialsFile,
	})
	if err != nil {
		return err
	}
	defer uploader.Close()

	object, err := uploader.Upload(ctx, name, data)
	if err != nil {
		return err
	}
	fmt.Printf("archived to gs://%s/%s\n", cfg.Bucket, object)
	return nil
}
