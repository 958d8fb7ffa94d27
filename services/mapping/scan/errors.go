// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"errors"
	"fmt"
)

// Sentinel causes wrapped by *UnscannableError.
var (
	// ErrUnscannable indicates the buffer could not be parsed into a
	// structurally sound syntax tree.
	ErrUnscannable = errors.New("input cannot be scanned")

	// ErrInvalidContent indicates the buffer is not valid UTF-8 text.
	ErrInvalidContent = errors.New("input is not valid UTF-8")

	// ErrSourceTooLarge indicates the buffer exceeds MaxSourceSize.
	ErrSourceTooLarge = errors.New("input exceeds maximum size")
)

// UnscannableError reports that one input buffer cannot be scanned.
//
// Description:
//
//	Returned by Scan when the buffer fails validation or parses with
//	syntax errors. The failure is scoped to the one request: no call
//	sites are returned and no rewrite is attempted. Offset points at the
//	first unscannable region, best-effort.
type UnscannableError struct {
	// Offset is the byte offset of the first detected problem. Zero when
	// no finer location is known.
	Offset int

	// Err wraps one of the sentinel causes above.
	Err error
}

// Error implements the error interface.
func (e *UnscannableError) Error() string {
	return fmt.Sprintf("unscannable input at byte %d: %v", e.Offset, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *UnscannableError) Unwrap() error {
	return e.Err
}
