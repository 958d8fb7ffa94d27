// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scan locates call sites in Python source buffers.
//
// Scanning is AST-based (tree-sitter), not textual: a call-like substring
// inside a string literal or comment can never produce a call site because
// it never parses as a call node. The scanner reports every syntactically
// plausible call; deciding which calls map to anything is the translation
// engine's job.
package scan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("msbridge.mapping.scan")

const (
	// MaxSourceSize caps one input buffer at 10MB. Larger buffers are
	// rejected before parsing.
	MaxSourceSize = 10 * 1024 * 1024

	// maxAttributeDepth bounds dotted attribute chains. Real code never
	// approaches this; it guards against adversarial nesting.
	maxAttributeDepth = 64

	// ctxCheckInterval is how many nodes are visited between context
	// cancellation checks during traversal.
	ctxCheckInterval = 100
)

// Span is a half-open byte range [Start, End) into the original buffer.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CallSite is one located call expression.
//
// Description:
//
//	Span covers the whole call expression including arguments; NameSpan
//	covers only the invoked-name portion, which is what a consistent
//	substitution replaces. InvokedName is the canonical dotted name after
//	alias resolution; ArgsText is the verbatim argument list, parentheses
//	included, never parsed into a value model.
type CallSite struct {
	// Span is the byte range of the full call expression.
	Span Span

	// NameSpan is the byte range of the function name within the call.
	NameSpan Span

	// InvokedName is the alias-resolved canonical dotted name.
	InvokedName string

	// ArgsText is the raw argument list text, including parentheses.
	ArgsText string

	// Line is the 1-based line the call starts on.
	Line int
}

// Scanner finds call sites in Python source.
//
// Thread Safety: Safe for concurrent use; a fresh tree-sitter parser is
// created per call because parsers are not safe to share.
type Scanner struct {
	maxSource int
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithMaxSourceSize overrides the input size cap.
func WithMaxSourceSize(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.maxSource = n
		}
	}
}

// NewScanner creates a Scanner with default limits.
func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{maxSource: MaxSourceSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns every call site in src, in source order.
//
// Description:
//
//	Parses src as Python and extracts each call whose function is a plain
//	identifier or a dotted chain of identifiers. Nested calls are each
//	reported. The leading identifier is resolved through aliases before
//	dotted-path concatenation. A buffer with no calls yields an empty
//	result, not an error.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	src - Python source buffer. Must be UTF-8 and under the size cap.
//	aliases - Local-name → dotted-path table, typically from ImportAliases.
//	          May be nil.
//
// Outputs:
//
//	[]CallSite - Call sites ordered by start offset.
//	error - *UnscannableError if src cannot be safely scanned. All-or-
//	        nothing: on error no call sites are returned.
func (s *Scanner) Scan(ctx context.Context, src []byte, aliases map[string]string) ([]CallSite, error) {
	ctx, span := tracer.Start(ctx, "scan.Scan")
	defer span.End()

	if err := s.checkInput(src); err != nil {
		return nil, err
	}

	root, err := parse(ctx, src)
	if err != nil {
		return nil, err
	}
	if root.HasError() {
		return nil, &UnscannableError{
			Offset: firstErrorOffset(root),
			Err:    fmt.Errorf("%w: syntax error", ErrUnscannable),
		}
	}

	sites, err := s.extractCallSites(ctx, root, src, aliases)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(sites, func(i, j int) bool {
		return sites[i].Span.Start < sites[j].Span.Start
	})
	span.SetAttributes(attribute.Int("call_sites", len(sites)))
	return sites, nil
}

// checkInput enforces the size and encoding preconditions. Every entry
// point that parses a buffer must pass through here before tree-sitter
// sees a single byte.
func (s *Scanner) checkInput(src []byte) error {
	if len(src) > s.maxSource {
		return &UnscannableError{Offset: s.maxSource, Err: fmt.Errorf("%w: %d bytes", ErrSourceTooLarge, len(src))}
	}
	if !utf8.Valid(src) {
		return &UnscannableError{Offset: firstInvalidUTF8(src), Err: ErrInvalidContent}
	}
	return nil
}

// ImportAliases derives the alias table for src with the scanner's input
// checks applied first, so an oversized or malformed buffer is rejected
// before the alias pass parses it.
func (s *Scanner) ImportAliases(ctx context.Context, src []byte) (map[string]string, error) {
	if err := s.checkInput(src); err != nil {
		return nil, err
	}
	return ImportAliases(ctx, src)
}

// parse runs tree-sitter over src and returns the root node. A parser is
// created per call; tree-sitter parsers are cheap and not concurrency-safe.
func parse(ctx context.Context, src []byte) (*sitter.Node, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, &UnscannableError{Err: fmt.Errorf("%w: %v", ErrUnscannable, err)}
	}
	return tree.RootNode(), nil
}

// extractCallSites walks the tree iteratively and collects call nodes.
func (s *Scanner) extractCallSites(ctx context.Context, root *sitter.Node, src []byte, aliases map[string]string) ([]CallSite, error) {
	var sites []CallSite
	stack := []*sitter.Node{root}
	visited := 0

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		visited++
		if visited%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &UnscannableError{Err: fmt.Errorf("%w: %v", ErrUnscannable, err)}
			}
		}

		if node.Type() == "call" {
			if site, ok := s.callSiteFromNode(node, src, aliases); ok {
				sites = append(sites, site)
			}
		}

		// Push named children in reverse so the leftmost is visited first.
		for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, node.NamedChild(i))
		}
	}
	return sites, nil
}

// callSiteFromNode converts one call node into a CallSite. Calls whose
// function is not an identifier or dotted identifier chain (subscripts,
// chained call results, lambdas) are not call sites.
func (s *Scanner) callSiteFromNode(node *sitter.Node, src []byte, aliases map[string]string) (CallSite, bool) {
	funcNode := node.ChildByFieldName("function")
	if funcNode == nil {
		return CallSite{}, false
	}

	name, ok := flattenDottedName(funcNode, src)
	if !ok {
		return CallSite{}, false
	}

	argsText := ""
	if args := node.ChildByFieldName("arguments"); args != nil {
		argsText = args.Content(src)
	}

	return CallSite{
		Span:        Span{Start: int(node.StartByte()), End: int(node.EndByte())},
		NameSpan:    Span{Start: int(funcNode.StartByte()), End: int(funcNode.EndByte())},
		InvokedName: resolveAlias(name, aliases),
		ArgsText:    argsText,
		Line:        int(node.StartPoint().Row) + 1,
	}, true
}

// flattenDottedName renders an identifier or attribute chain as a dotted
// string. Returns false if any link in the chain is not an identifier.
func flattenDottedName(node *sitter.Node, src []byte) (string, bool) {
	var parts []string
	for depth := 0; depth < maxAttributeDepth; depth++ {
		switch node.Type() {
		case "identifier":
			parts = append(parts, node.Content(src))
			// Reverse into source order.
			for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
				parts[i], parts[j] = parts[j], parts[i]
			}
			return strings.Join(parts, "."), true
		case "attribute":
			attr := node.ChildByFieldName("attribute")
			obj := node.ChildByFieldName("object")
			if attr == nil || obj == nil || attr.Type() != "identifier" {
				return "", false
			}
			parts = append(parts, attr.Content(src))
			node = obj
		default:
			return "", false
		}
	}
	return "", false
}

// resolveAlias rewrites the leading identifier of a dotted name through the
// alias table. Unknown leading names pass through untouched.
func resolveAlias(name string, aliases map[string]string) string {
	if len(aliases) == 0 {
		return name
	}
	head := name
	rest := ""
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		head = name[:dot]
		rest = name[dot:]
	}
	if canonical, ok := aliases[head]; ok {
		return canonical + rest
	}
	return name
}

// firstErrorOffset locates the first ERROR or MISSING node, best-effort.
func firstErrorOffset(root *sitter.Node) int {
	offset := 0
	found := false
	walk(root, func(node *sitter.Node) bool {
		if found {
			return false
		}
		if node.IsError() || node.IsMissing() {
			offset = int(node.StartByte())
			found = true
			return false
		}
		// Only descend into subtrees that actually contain the error.
		return node.HasError()
	})
	return offset
}

// firstInvalidUTF8 returns the offset of the first invalid byte sequence.
func firstInvalidUTF8(src []byte) int {
	for i := 0; i < len(src); {
		r, size := utf8.DecodeRune(src[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return 0
}
