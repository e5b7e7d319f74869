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
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// runRank ranks the document's SNR-bearing groups, saves the session so
// the rank prefixes persist, and prints the resulting order.
func runRank(cmd *cobra.Command, args []string) {
	name := args[0]

	cli, err := openCLI(false)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer cli.close()

	ctx := context.Background()
	resp, err := cli.svc.Rank(ctx, name)
	if err != nil {
		log.Fatalf("Error ranking %q: %v", name, err)
	}
	if _, err := cli.svc.Save(ctx, name); err != nil {
		log.Fatalf("Error saving %q after ranking: %v", name, err)
	}

	if rankJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			log.Fatalf("Error encoding rank result: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	if len(resp.Ranked) == 0 {
		fmt.Println("no groups carry an SNR; nothing ranked")
		return
	}
	for i, id := range resp.Ranked {
		marker := "  "
		if id == resp.Primary {
			marker = "> " // highest combined z-score
		}
		fmt.Printf("%s%2d. %s\n", marker, i+1, id)
	}
}
