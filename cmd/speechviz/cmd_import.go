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
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/evfinkn/speechviz-sub000/pkg/validation"
	"github.com/evfinkn/speechviz-sub000/services/annotate/store"
)

// runImport stores each annotation JSON file as a document named after
// the file. Existing documents are only replaced with --force.
func runImport(cmd *cobra.Command, args []string) {
	cli, err := openCLI(false)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer cli.close()

	ctx := context.Background()
	imported := 0
	for _, path := range args {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if err := validation.ValidateDocumentName(name); err != nil {
			fmt.Printf("skipping %s: %v\n", path, err)
			continue
		}

		if !importForce {
			if _, err := cli.store.Get(ctx, name); err == nil {
				fmt.Printf("skipping %s: document %q exists (use --force to replace)\n", path, name)
				continue
			} else if !errors.Is(err, store.ErrNotFound) {
				log.Fatalf("Error checking document %q: %v", name, err)
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("skipping %s: %v\n", path, err)
			continue
		}
		resp, err := cli.svc.Import(ctx, name, data)
		if err != nil {
			fmt.Printf("skipping %s: %v\n", path, err)
			continue
		}
		fmt.Printf("imported %s (format %s, %d groups, %d segments", name,
			resp.FormatVersion, resp.Groups, resp.Segments)
		if len(resp.Skipped) > 0 {
			fmt.Printf(", %d entries skipped", len(resp.Skipped))
		}
		fmt.Println(")")
		imported++
	}
	fmt.Printf("%d of %d files imported\n", imported, len(args))
}

// runList prints every stored document.
func runList(cmd *cobra.Command, args []string) {
	cli, err := openCLI(false)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer cli.close()

	resp, err := cli.svc.List(context.Background())
	if err != nil {
		log.Fatalf("Error listing documents: %v", err)
	}
	if len(resp.Documents) == 0 {
		fmt.Println("no documents stored")
		return
	}
	for _, doc := range resp.Documents {
		saved := " "
		if doc.HasSaved {
			saved = "*"
		}
		fmt.Printf("%s %-32s format=%s modified=%s\n", saved, doc.Name,
			doc.FormatVersion, doc.ModifiedAt.Format("2006-01-02 15:04:05"))
	}
}

// runDelete removes a document. Interactive runs confirm through a
// form; scripts must pass --force.
func runDelete(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")
	if !force {
		if !isatty.IsTerminal(os.Stdout.Fd()) {
			log.Fatalf("Refusing to delete %q without --force", args[0])
		}
		var confirmed bool
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete document %q and its saved session?", args[0])).
				Affirmative("Delete").
				Negative("Keep").
				Value(&confirmed),
		))
		if err := form.Run(); err != nil {
			log.Fatalf("Error reading confirmation: %v", err)
		}
		if !confirmed {
			fmt.Println("delete cancelled")
			return
		}
	}

	cli, err := openCLI(false)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer cli.close()

	if err := cli.svc.Delete(context.Background(), args[0]); err != nil {
		log.Fatalf("Error deleting document %q: %v", args[0], err)
	}
	fmt.Printf("deleted %s\n", args[0])
}
