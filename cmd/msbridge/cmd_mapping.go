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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// entryRecord mirrors the server's mapping entry wire shape.
type entryRecord struct {
	SourceAPI string `json:"source_api"`
	TargetAPI string `json:"target_api"`
	Category  string `json:"category"`
	Section   string `json:"section"`
	Note      string `json:"note,omitempty"`
}

type queryResponse struct {
	Query   string        `json:"query"`
	Count   int           `json:"count"`
	Results []entryRecord `json:"results"`
}

type reportItem struct {
	OriginalName string  `json:"original_name"`
	TargetName   *string `json:"target_name"`
	Note         *string `json:"note"`
	Line         int     `json:"line"`
}

type translateResponse struct {
	RewrittenText string       `json:"rewritten_text"`
	Substituted   []reportItem `json:"substituted"`
	Annotated     []reportItem `json:"annotated"`
	Unresolved    []reportItem `json:"unresolved"`
}

func runQueryCommand(cmd *cobra.Command, args []string) {
	section, _ := cmd.Flags().GetString("section")

	params := url.Values{"name": {args[0]}}
	if section != "" {
		params.Set("section", section)
	}

	var resp queryResponse
	if err := getJSON(fmt.Sprintf("%s/v1/mapping/ops?%s", serverURL, params.Encode()), &resp); err != nil {
		fatal(err)
	}

	if resp.Count == 0 {
		fmt.Printf("No mapping found for %q\n", args[0])
		return
	}
	for _, e := range resp.Results {
		target := e.TargetAPI
		if target == "" {
			target = "(no direct equivalent)"
		}
		fmt.Printf("%-10s %-40s -> %s\n", "["+e.Category+"]", e.SourceAPI, target)
		if e.Note != "" {
			fmt.Printf("           note: %s\n", e.Note)
		}
	}
}

func runTranslateCommand(cmd *cobra.Command, args []string) {
	var source []byte
	var err error
	if len(args) == 1 {
		source, err = os.ReadFile(args[0])
	} else {
		source, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fatal(fmt.Errorf("reading source: %w", err))
	}

	body, err := json.Marshal(map[string]string{"source": string(source)})
	if err != nil {
		fatal(err)
	}

	var resp translateResponse
	if err := postJSON(serverURL+"/v1/mapping/translate", body, &resp); err != nil {
		fatal(err)
	}

	showReport, _ := cmd.Flags().GetBool("report")
	if showReport {
		printReport(&resp)
		return
	}

	output, _ := cmd.Flags().GetString("output")
	if output != "" {
		if err := os.WriteFile(output, []byte(resp.RewrittenText), 0o644); err != nil {
			fatal(fmt.Errorf("writing %s: %w", output, err))
		}
		fmt.Printf("Wrote %s (%d substituted, %d annotated, %d unresolved)\n",
			output, len(resp.Substituted), len(resp.Annotated), len(resp.Unresolved))
		return
	}
	fmt.Print(resp.RewrittenText)
}

func printReport(resp *translateResponse) {
	for _, item := range resp.Substituted {
		fmt.Printf("substituted  line %-4d %s -> %s\n", item.Line, item.OriginalName, deref(item.TargetName))
	}
	for _, item := range resp.Annotated {
		fmt.Printf("annotated    line %-4d %s: %s\n", item.Line, item.OriginalName, deref(item.Note))
	}
	for _, item := range resp.Unresolved {
		fmt.Printf("unresolved   line %-4d %s\n", item.Line, item.OriginalName)
	}
}

type mappingCheckItem struct {
	SourceAPI       string `json:"source_api"`
	TargetAPI       string `json:"target_api"`
	Note            string `json:"note"`
	SourceCount     int    `json:"source_count"`
	TranslatedCount int    `json:"translated_count"`
}

type diffHitItem struct {
	SourceAPI string `json:"source_api"`
	TargetAPI string `json:"target_api"`
	Note      string `json:"note"`
	Count     int    `json:"count"`
	ShapeHint string `json:"shape_hint"`
}

type diagnoseResponse struct {
	Applied   []mappingCheckItem `json:"applied_mappings"`
	Missing   []mappingCheckItem `json:"missing_mappings"`
	Extra     []mappingCheckItem `json:"extra_calls"`
	DiffHits  []diffHitItem      `json:"diff_hits"`
	Annotated string             `json:"annotated"`
}

func runDiagnoseCommand(cmd *cobra.Command, args []string) {
	original, err := os.ReadFile(args[0])
	if err != nil {
		fatal(fmt.Errorf("reading original: %w", err))
	}
	translated, err := os.ReadFile(args[1])
	if err != nil {
		fatal(fmt.Errorf("reading translation: %w", err))
	}
	section, _ := cmd.Flags().GetString("section")

	body, err := json.Marshal(map[string]string{
		"original":   string(original),
		"translated": string(translated),
		"section":    section,
	})
	if err != nil {
		fatal(err)
	}

	var resp diagnoseResponse
	if err := postJSON(serverURL+"/v1/mapping/diagnose", body, &resp); err != nil {
		fatal(err)
	}

	if annotated, _ := cmd.Flags().GetBool("annotated"); annotated {
		fmt.Print(resp.Annotated)
		return
	}

	fmt.Printf("%d mappings checked: %d missing, %d extra, %d diff hits\n",
		len(resp.Applied), len(resp.Missing), len(resp.Extra), len(resp.DiffHits))
	for _, item := range resp.Missing {
		fmt.Printf("missing   %s -> %s (%d calls, 0 translated)\n",
			item.SourceAPI, item.TargetAPI, item.SourceCount)
	}
	for _, item := range resp.Extra {
		fmt.Printf("extra     %s (%d calls, no matching source)\n",
			item.TargetAPI, item.TranslatedCount)
	}
	for _, hit := range resp.DiffHits {
		fmt.Printf("diff      %s (%d calls): %s\n", hit.SourceAPI, hit.Count, hit.Note)
		if hit.ShapeHint != "" {
			fmt.Printf("          hint: %s\n", hit.ShapeHint)
		}
	}
}

func runModelsCommand(cmd *cobra.Command, args []string) {
	if len(args) == 1 {
		var model map[string]any
		if err := getJSON(serverURL+"/v1/mapping/models/"+url.PathEscape(args[0]), &model); err != nil {
			fatal(err)
		}
		pretty, _ := json.MarshalIndent(model, "", "  ")
		fmt.Println(string(pretty))
		return
	}

	params := url.Values{}
	for _, flagName := range []string{"group", "category", "task", "suite"} {
		if v, _ := cmd.Flags().GetString(flagName); v != "" {
			params.Set(flagName, v)
		}
	}
	if v, _ := cmd.Flags().GetString("keyword"); v != "" {
		params.Set("q", v)
	}

	var resp struct {
		Version string `json:"version"`
		Count   int    `json:"count"`
		Models  []struct {
			ID    string   `json:"id"`
			Name  string   `json:"name"`
			Group string   `json:"group"`
			Task  []string `json:"task"`
		} `json:"models"`
	}
	if err := getJSON(serverURL+"/v1/mapping/models?"+params.Encode(), &resp); err != nil {
		fatal(err)
	}

	fmt.Printf("%d models (registry %s)\n", resp.Count, resp.Version)
	for _, m := range resp.Models {
		fmt.Printf("%-20s %-30s %-10s %v\n", m.ID, m.Name, m.Group, m.Task)
	}
}

func runRefreshCommand(_ *cobra.Command, _ []string) {
	var resp map[string]any
	if err := postJSON(serverURL+"/v1/mapping/refresh", nil, &resp); err != nil {
		fatal(err)
	}
	fmt.Printf("Refreshed: generation %v, %v entries\n", resp["generation"], resp["entries"])
}

func getJSON(targetURL string, out any) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(targetURL)
	if err != nil {
		return fmt.Errorf("failed to reach mapping server: %w", err)
	}
	return decodeResponse(resp, out)
}

func postJSON(targetURL string, body []byte, out any) error {
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(targetURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach mapping server: %w", err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to parse server response: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
