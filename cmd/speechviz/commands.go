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
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// --- Global Command Variables ---
var (
	serveHost     string
	servePort     int
	serveWatchDir string
	importForce   bool
	exportOutput  string
	exportArchive bool
	rankJSON      bool

	rootCmd = &cobra.Command{
		Use:   "speechviz",
		Short: "A cli to run and manage the speechviz annotation service",
		Long: `Speechviz manages audio annotation documents: hierarchies of
				labeled time segments with undoable edits, SNR ranking, and
				optional transcript search and labeling assistance.`,
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the annotation HTTP service",
		Run:   runServe, // Defined in cmd_serve.go
	}

	// --- Documents ---
	importCmd = &cobra.Command{
		Use:   "import [file...]",
		Short: "Import annotation JSON files into the document store",
		Args:  cobra.MinimumNArgs(1),
		Run:   runImport, // Defined in cmd_import.go
	}
	exportCmd = &cobra.Command{
		Use:   "export [document]",
		Short: "Export a document's current annotations as save JSON",
		Args:  cobra.ExactArgs(1),
		Run:   runExport, // Defined in cmd_export.go
	}
	rankCmd = &cobra.Command{
		Use:   "rank [document]",
		Short: "Rank a document's SNR-bearing groups and print the order",
		Args:  cobra.ExactArgs(1),
		Run:   runRank, // Defined in cmd_rank.go
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored annotation documents",
		Run:   runList, // Defined in cmd_import.go
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [document]",
		Short: "Delete a document and its saved session",
		Args:  cobra.ExactArgs(1),
		Run:   runDelete, // Defined in cmd_import.go
	}

	// --- TUI ---
	tuiCmd = &cobra.Command{
		Use:   "tui [document]",
		Short: "Browse and edit a document's annotation tree interactively",
		Args:  cobra.ExactArgs(1),
		Run:   runTui, // Defined in cmd_tui.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the speechviz version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind address (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Bind port (overrides config)")
	serveCmd.Flags().StringVar(&serveWatchDir, "watch-dir", "", "Annotation directory to watch (overrides config)")

	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importForce, "force", false, "Overwrite existing documents without prompting")

	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output filename (default: {document}.json)")
	exportCmd.Flags().BoolVar(&exportArchive, "archive", false, "Also upload the export to the configured GCS bucket")

	rootCmd.AddCommand(rankCmd)
	rankCmd.Flags().BoolVar(&rankJSON, "json", false, "Print the rank result as JSON")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().Bool("force", false, "Required to confirm the deletion")

	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(versionCmd)
}
