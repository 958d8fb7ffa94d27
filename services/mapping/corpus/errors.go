// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package corpus

import (
	"errors"
	"fmt"
)

// Sentinel errors for corpus validation failures. All are wrapped by
// *CorpusError when surfaced from Load.
var (
	// ErrMissingField indicates a record is missing a required field.
	ErrMissingField = errors.New("missing required field")

	// ErrUnknownCategory indicates a record's category is outside
	// {consistent, diff}.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrEmptyDiffNote indicates a diff record without an explanatory note.
	ErrEmptyDiffNote = errors.New("diff entry has empty note")

	// ErrDuplicateEntry indicates two records share a source_api within
	// the same section.
	ErrDuplicateEntry = errors.New("duplicate source_api in section")

	// ErrMalformedCorpus indicates a corpus file could not be read or parsed.
	ErrMalformedCorpus = errors.New("malformed corpus file")
)

// CorpusError reports a fatal corpus load failure.
//
// Description:
//
//	Returned by Load when any record is malformed or inconsistent. The
//	load is all-or-nothing: a CorpusError means no index was built and
//	any previously published index stays live.
type CorpusError struct {
	// Path is the corpus file the failure was detected in. May be empty
	// for cross-file failures.
	Path string

	// Err is the underlying cause, wrapping one of the sentinel errors.
	Err error
}

// Error implements the error interface.
func (e *CorpusError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("corpus: %v", e.Err)
	}
	return fmt.Sprintf("corpus %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *CorpusError) Unwrap() error {
	return e.Err
}
