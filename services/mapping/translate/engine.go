// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package translate rewrites PyTorch source against the mapping corpus.
//
// Consistent call sites get their invoked name substituted with the target
// API, arguments untouched. Diff call sites are never rewritten; they get a
// trailing advisory comment on their line. Everything else is reported as
// unresolved and left alone. Translation is all-or-nothing at the scanning
// stage: if the buffer cannot be scanned, no output is produced.
package translate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/msbridge-ai/msbridge/services/mapping/corpus"
	"github.com/msbridge-ai/msbridge/services/mapping/resolve"
	"github.com/msbridge-ai/msbridge/services/mapping/scan"
)

var tracer = otel.Tracer("msbridge.mapping.translate")

// Item pairs a call site with the mapping entry it resolved to. Entry is
// nil for unresolved sites.
type Item struct {
	Site  scan.CallSite
	Entry *corpus.Entry
}

// Report is the structured outcome of one translation run. All three lists
// preserve source order. The report is a single-shot value owned by the
// caller; the engine keeps no reference to it.
type Report struct {
	// Substituted lists consistent call sites whose name was rewritten.
	Substituted []Item

	// Annotated lists diff call sites that received an advisory comment.
	Annotated []Item

	// Unresolved lists call sites with no usable mapping. Their text is
	// byte-identical in the output.
	Unresolved []Item
}

// Engine orchestrates scanner, corpus, and resolver for one translation.
//
// Thread Safety: Safe for concurrent use; all per-call state is local.
type Engine struct {
	scanner *scan.Scanner
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithScanner substitutes a custom-configured scanner.
func WithScanner(s *scan.Scanner) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.scanner = s
		}
	}
}

// NewEngine creates a translation engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{scanner: scan.NewScanner()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// edit is one pending mutation of the output buffer. Replacements have
// start < end; annotations are pure insertions with start == end.
type edit struct {
	start, end int
	text       string
}

// Translate rewrites src against the resolver's corpus snapshot.
//
// Description:
//
//	Derives the import alias table from src itself, scans for call sites,
//	resolves each invoked name exactly (case-insensitive at most — fuzzy
//	matching is never applied to code rewriting), and applies edits in
//	descending start-offset order so original offsets stay valid during
//	the rewrite. Report spans always reference the original buffer.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	res - Resolver bound to the corpus snapshot to translate against.
//	src - Python source text.
//
// Outputs:
//
//	string - The rewritten buffer. Equals src when nothing matched.
//	*Report - Substituted/annotated/unresolved call sites in source order.
//	error - *scan.UnscannableError when src cannot be scanned; the input
//	        is returned unmodified only on success, never partially.
func (e *Engine) Translate(ctx context.Context, res *resolve.Resolver, src string) (string, *Report, error) {
	ctx, span := tracer.Start(ctx, "translate.Translate")
	defer span.End()

	sites, err := e.scanSites(ctx, src)
	if err != nil {
		return "", nil, err
	}

	report := &Report{}
	var edits []edit

	for _, site := range sites {
		entry, ok := res.Index().LookupExact(site.InvokedName)
		if !ok {
			entry, ok = res.ResolveStrict(ctx, site.InvokedName)
		}
		if !ok {
			report.Unresolved = append(report.Unresolved, Item{Site: site})
			continue
		}

		switch entry.Category {
		case corpus.CategoryConsistent:
			if entry.TargetAPI == "" {
				// Nothing to substitute with; surface it instead of
				// silently deleting the name.
				report.Unresolved = append(report.Unresolved, Item{Site: site})
				continue
			}
			edits = append(edits, edit{
				start: site.NameSpan.Start,
				end:   site.NameSpan.End,
				text:  entry.TargetAPI,
			})
			report.Substituted = append(report.Substituted, Item{Site: site, Entry: entry})

		case corpus.CategoryDiff:
			eol := lineEnd(src, site.Span.Start)
			edits = append(edits, edit{
				start: eol,
				end:   eol,
				text:  annotation(entry),
			})
			report.Annotated = append(report.Annotated, Item{Site: site, Entry: entry})
		}
	}

	out := applyEdits(src, edits)
	span.SetAttributes(
		attribute.Int("substituted", len(report.Substituted)),
		attribute.Int("annotated", len(report.Annotated)),
		attribute.Int("unresolved", len(report.Unresolved)),
	)
	return out, report, nil
}

// scanSites derives the alias table from src and scans it for call sites.
// The scanner's input checks cover the alias pass too: an oversized or
// malformed buffer is rejected before either parse.
func (e *Engine) scanSites(ctx context.Context, src string) ([]scan.CallSite, error) {
	buf := []byte(src)
	aliases, err := e.scanner.ImportAliases(ctx, buf)
	if err != nil {
		return nil, err
	}
	return e.scanner.Scan(ctx, buf, aliases)
}

// applyEdits splices edits into src in descending start order so that
// every edit's offsets still refer to the original buffer when applied.
func applyEdits(src string, edits []edit) string {
	if len(edits) == 0 {
		return src
	}
	sort.SliceStable(edits, func(i, j int) bool {
		return edits[i].start > edits[j].start
	})

	out := src
	for _, ed := range edits {
		out = out[:ed.start] + ed.text + out[ed.end:]
	}
	return out
}

// annotation renders the trailing advisory comment for a diff entry.
func annotation(entry *corpus.Entry) string {
	if entry.TargetAPI == "" {
		return fmt.Sprintf(" # NOTE: %s: %s", entry.SourceAPI, entry.Note)
	}
	return fmt.Sprintf(" # NOTE: %s -> %s: %s", entry.SourceAPI, entry.TargetAPI, entry.Note)
}

// lineEnd returns the offset of the newline ending the logical line
// containing pos, or len(src) for a final unterminated line. A line whose
// last character is a backslash continues onto the next physical line, and
// a comment inserted before that backslash would break the continuation.
func lineEnd(src string, pos int) int {
	for {
		idx := strings.IndexByte(src[pos:], '\n')
		if idx < 0 {
			return len(src)
		}
		eol := pos + idx
		last := eol
		if last > 0 && src[last-1] == '\r' {
			last--
		}
		if last > 0 && src[last-1] == '\\' {
			pos = eol + 1
			continue
		}
		return eol
	}
}
