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
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// runTui opens an interactive tree browser over one document.
func runTui(cmd *cobra.Command, args []string) {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		log.Fatal("tui requires an interactive terminal")
	}

	cli, err := openCLI(true)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer cli.close()

	model, err := newTreeModel(cli.svc, args[0])
	if err != nil {
		log.Fatalf("Error opening document %q: %v", args[0], err)
	}

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		log.Fatalf("Error running tui: %v", err)
	}
}
