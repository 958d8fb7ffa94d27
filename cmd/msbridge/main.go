// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command msbridge is the CLI client for the mapping server.
//
// Usage:
//
//	msbridge query addmm
//	msbridge query dropout --section torch.nn
//	msbridge translate model.py
//	cat model.py | msbridge translate
//	msbridge diagnose model.py model_ms.py
//	msbridge models --group cv
//	msbridge models resnet50
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// serverURL holds the --server flag value for all subcommands.
var serverURL string

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "msbridge",
		Short: "PyTorch → MindSpore API mapping and translation client",
		Long: "msbridge talks to a running mapserver instance to resolve API\n" +
			"correspondences, translate PyTorch source, and browse the\n" +
			"MindSpore model catalog.",
	}

	defaultServer := os.Getenv("MSBRIDGE_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8096"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer,
		"Base URL of the mapping server")

	queryCmd := &cobra.Command{
		Use:   "query <name>",
		Short: "Resolve an API name against the mapping corpus",
		Args:  cobra.ExactArgs(1),
		Run:   runQueryCommand,
	}
	queryCmd.Flags().String("section", "", "Restrict matching to one corpus section")

	translateCmd := &cobra.Command{
		Use:   "translate [file]",
		Short: "Translate PyTorch source (from a file or stdin)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runTranslateCommand,
	}
	translateCmd.Flags().StringP("output", "o", "", "Write the rewritten source to a file instead of stdout")
	translateCmd.Flags().Bool("report", false, "Print the substitution report instead of the rewritten source")

	diagnoseCmd := &cobra.Command{
		Use:   "diagnose <original.py> <translated.py>",
		Short: "Check a finished translation against the mapping corpus",
		Args:  cobra.ExactArgs(2),
		Run:   runDiagnoseCommand,
	}
	diagnoseCmd.Flags().String("section", "", "Restrict checking to one corpus section")
	diagnoseCmd.Flags().Bool("annotated", false, "Print the annotated original instead of the summary")

	modelsCmd := &cobra.Command{
		Use:   "models [id]",
		Short: "List catalog models, or show one model's full record",
		Args:  cobra.MaximumNArgs(1),
		Run:   runModelsCommand,
	}
	modelsCmd.Flags().String("group", "", "Filter by group")
	modelsCmd.Flags().String("category", "", "Filter by category")
	modelsCmd.Flags().String("task", "", "Filter by task")
	modelsCmd.Flags().String("suite", "", "Filter by suite")
	modelsCmd.Flags().StringP("keyword", "q", "", "Substring filter on id or name")

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Reload the server's corpus and registry snapshots",
		Args:  cobra.NoArgs,
		Run:   runRefreshCommand,
	}

	rootCmd.AddCommand(queryCmd, translateCmd, diagnoseCmd, modelsCmd, refreshCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
