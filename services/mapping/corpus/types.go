// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package corpus loads and indexes the PyTorch→MindSpore API correspondence
// corpus. The corpus is split into "consistent" entries (behaviorally
// equivalent, safe for mechanical substitution) and "diff" entries
// (semantically divergent, carrying a human-reviewed note).
//
// An Index is immutable after construction. A refresh builds a whole new
// Index and publishes it through Holder with an atomic pointer swap, so
// in-flight readers always see a complete, consistent corpus.
package corpus

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Category classifies a mapping entry.
type Category string

const (
	// CategoryConsistent marks entries that are pure identifier renames:
	// argument order, semantics, and defaults all match the target API.
	CategoryConsistent Category = "consistent"

	// CategoryDiff marks entries with behavioral divergence. Diff entries
	// are never auto-substituted; the Note field explains the caveat.
	CategoryDiff Category = "diff"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryConsistent || c == CategoryDiff
}

// String returns the wire representation of the category.
func (c Category) String() string {
	return string(c)
}

// Entry is one source-API ↔ target-API correspondence.
//
// Description:
//
//	Entries are validated at load time and never mutated afterwards.
//	SourceAPI is unique within a Section; the same bare name may appear
//	in multiple sections with different qualifications.
//
// Thread Safety: Immutable after construction; safe for concurrent reads.
type Entry struct {
	// SourceAPI is the canonical dotted name in the source framework,
	// e.g. "torch.addmm" or "torch.nn.Dropout".
	SourceAPI string `json:"source_api" validate:"required"`

	// TargetAPI is the canonical dotted name in the target framework.
	// Empty when no direct equivalent exists.
	TargetAPI string `json:"target_api"`

	// Category is either CategoryConsistent or CategoryDiff.
	Category Category `json:"category" validate:"required"`

	// Section is the corpus grouping tag (e.g. "torch", "torchvision").
	Section string `json:"section" validate:"required"`

	// Note explains the divergence. Required for diff entries.
	Note string `json:"note,omitempty"`
}

// entryValidator is shared across Validate calls; validator.Validate is
// safe for concurrent use.
var entryValidator = validator.New()

// Validate checks the structural and cross-field invariants of an entry.
//
// Description:
//
//	Enforces the corpus invariants from the data model: required fields,
//	a known category, and the "diff implies non-empty note" rule. Called
//	by the loader for every record before the entry reaches an Index.
//
// Outputs:
//
//	error - Non-nil if any invariant is violated. Wraps the matching
//	        sentinel (ErrMissingField, ErrUnknownCategory, ErrEmptyDiffNote).
func (e *Entry) Validate() error {
	if err := entryValidator.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: %q (source_api=%s)", ErrUnknownCategory, e.Category, e.SourceAPI)
	}
	if e.Category == CategoryDiff && strings.TrimSpace(e.Note) == "" {
		return fmt.Errorf("%w: source_api=%s section=%s", ErrEmptyDiffNote, e.SourceAPI, e.Section)
	}
	return nil
}

// NormalizedName returns the lowercased final dotted segment of the source
// API name. This is the key the fuzzy resolver matches against, so that
// "addmm" finds "torch.addmm" without the namespace prefix.
func (e *Entry) NormalizedName() string {
	return NormalizeName(e.SourceAPI)
}

// NormalizeName lowercases name and strips everything before the final dot.
func NormalizeName(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.ToLower(name)
}
