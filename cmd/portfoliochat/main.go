// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command portfoliochat serves the portfolio chat API.
//
// # Usage
//
//	# Build
//	go build -o portfoliochat ./cmd/portfoliochat
//
//	# Run with environment configuration (.env is loaded if present)
//	OPENAI_API_KEY=sk-... OPENAI_ASSISTANT_ID=asst_... ./portfoliochat serve
//
//	# Run from a YAML file, overriding the port
//	./portfoliochat serve --config config.yaml --port 8080
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
