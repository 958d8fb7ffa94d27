// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package translate

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/msbridge-ai/msbridge/services/mapping/corpus"
	"github.com/msbridge-ai/msbridge/services/mapping/resolve"
	"github.com/msbridge-ai/msbridge/services/mapping/scan"
)

// shapeHintMatrix warns about the matrix ops whose operand shapes most
// often drift between the two frameworks.
const shapeHintMatrix = "check input/output shapes (expects matrix/matched dims)"

var shapeHintAPIs = map[string]string{
	"torch.addmm":  shapeHintMatrix,
	"torch.mm":     shapeHintMatrix,
	"torch.matmul": shapeHintMatrix,
	"torch.bmm":    shapeHintMatrix,
}

// MappingCheck reports how one consistent mapping fared across an
// original/translated pair: how often its source API is called in the
// original and how often its target API is called in the translation.
type MappingCheck struct {
	Entry           *corpus.Entry
	SourceCount     int
	TranslatedCount int
}

// DiffHit reports one divergent API called in the original source. Diff
// mappings are never substituted automatically, so every hit needs a
// human look. ShapeHint is non-empty for APIs with known shape pitfalls.
type DiffHit struct {
	Entry     *corpus.Entry
	Count     int
	ShapeHint string
}

// Diagnosis is the outcome of checking a finished translation against the
// corpus. Applied lists every consistent mapping touched on either side;
// Missing and Extra are its problem subsets. Annotated is the original
// source with a review comment above each site that still needs work.
type Diagnosis struct {
	Applied   []MappingCheck
	Missing   []MappingCheck
	Extra     []MappingCheck
	DiffHits  []DiffHit
	Annotated string
}

// Diagnose checks a translated buffer against the corpus.
//
// Description:
//
//	Scans both buffers for call sites and compares alias-resolved invoked
//	names against the corpus: a consistent mapping whose source API is
//	called in the original but whose target API never appears in the
//	translation is missing; a target API with no matching source call is
//	extra. Diff mappings are reported wherever the original calls them.
//	Counting is call-site based, so names inside strings or comments never
//	count. Results follow corpus insertion order.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	res - Resolver bound to the corpus snapshot to check against.
//	original - The source the translation started from.
//	translated - The candidate translation. May be empty, in which case
//	             every hit consistent mapping is reported missing.
//	section - Optional section filter, empty for the whole corpus.
//
// Outputs:
//
//	*Diagnosis - The comparison outcome. Nil on error.
//	error - *scan.UnscannableError when either buffer cannot be scanned.
func (e *Engine) Diagnose(ctx context.Context, res *resolve.Resolver, original, translated, section string) (*Diagnosis, error) {
	ctx, span := tracer.Start(ctx, "translate.Diagnose")
	defer span.End()

	srcSites, err := e.scanSites(ctx, original)
	if err != nil {
		return nil, err
	}
	var dstCounts map[string]int
	if translated != "" {
		dstSites, err := e.scanSites(ctx, translated)
		if err != nil {
			return nil, err
		}
		dstCounts = countInvoked(dstSites)
	}
	srcCounts := countInvoked(srcSites)

	idx := res.Index()
	var candidates []*corpus.Entry
	if section != "" {
		candidates = idx.Section(section)
	} else {
		candidates = idx.Entries()
	}

	diag := &Diagnosis{}
	flagged := make(map[string]*corpus.Entry)
	for _, entry := range candidates {
		srcKey := strings.ToLower(entry.SourceAPI)
		switch entry.Category {
		case corpus.CategoryConsistent:
			if entry.TargetAPI == "" {
				continue
			}
			check := MappingCheck{
				Entry:           entry,
				SourceCount:     srcCounts[srcKey],
				TranslatedCount: dstCounts[strings.ToLower(entry.TargetAPI)],
			}
			if check.SourceCount == 0 && check.TranslatedCount == 0 {
				continue
			}
			diag.Applied = append(diag.Applied, check)
			switch {
			case check.SourceCount > 0 && check.TranslatedCount == 0:
				diag.Missing = append(diag.Missing, check)
				flagged[srcKey] = entry
			case check.SourceCount == 0 && check.TranslatedCount > 0:
				diag.Extra = append(diag.Extra, check)
			}

		case corpus.CategoryDiff:
			count := srcCounts[srcKey]
			if count == 0 {
				continue
			}
			diag.DiffHits = append(diag.DiffHits, DiffHit{
				Entry:     entry,
				Count:     count,
				ShapeHint: shapeHintAPIs[entry.SourceAPI],
			})
			flagged[srcKey] = entry
		}
	}

	diag.Annotated = annotateFlagged(original, srcSites, flagged)
	span.SetAttributes(
		attribute.Int("applied", len(diag.Applied)),
		attribute.Int("missing", len(diag.Missing)),
		attribute.Int("extra", len(diag.Extra)),
		attribute.Int("diff_hits", len(diag.DiffHits)),
	)
	return diag, nil
}

// countInvoked tallies call sites by folded invoked name, matching the
// case-insensitive tier strict resolution allows.
func countInvoked(sites []scan.CallSite) map[string]int {
	counts := make(map[string]int, len(sites))
	for _, site := range sites {
		counts[strings.ToLower(site.InvokedName)]++
	}
	return counts
}

// annotateFlagged inserts a review comment line, matching the call line's
// indentation, above every call site whose invoked name is flagged. A line
// is annotated once per mapping even when it calls the API repeatedly.
func annotateFlagged(src string, sites []scan.CallSite, flagged map[string]*corpus.Entry) string {
	if len(flagged) == 0 {
		return src
	}

	var edits []edit
	seen := make(map[string]bool)
	for _, site := range sites {
		entry, ok := flagged[strings.ToLower(site.InvokedName)]
		if !ok {
			continue
		}
		start := lineStart(src, site.Span.Start)
		key := fmt.Sprintf("%d\x00%s", start, entry.SourceAPI)
		if seen[key] {
			continue
		}
		seen[key] = true
		indent := leadingIndent(src, start)
		edits = append(edits, edit{start: start, end: start, text: indent + reviewComment(entry) + "\n"})
	}
	return applyEdits(src, edits)
}

// reviewComment renders the marker placed above one flagged call line.
func reviewComment(entry *corpus.Entry) string {
	target := entry.TargetAPI
	if target == "" {
		target = "mindspore.*"
	}
	if entry.Category == corpus.CategoryDiff {
		return fmt.Sprintf("# TODO: check mapping %s -> %s: %s", entry.SourceAPI, target, entry.Note)
	}
	return fmt.Sprintf("# TODO: replace %s -> %s per mapping", entry.SourceAPI, target)
}

// lineStart returns the offset of the first byte of the line containing pos.
func lineStart(src string, pos int) int {
	if idx := strings.LastIndexByte(src[:pos], '\n'); idx >= 0 {
		return idx + 1
	}
	return 0
}

// leadingIndent returns the whitespace prefix of the line starting at start.
func leadingIndent(src string, start int) string {
	i := start
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	return src[start:i]
}
