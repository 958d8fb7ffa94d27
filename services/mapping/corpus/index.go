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
	"fmt"
	"sync/atomic"
)

// IndexStats contains statistics about a built index.
type IndexStats struct {
	// TotalEntries is the total number of mapping entries.
	TotalEntries int

	// Consistent is the number of consistent entries.
	Consistent int

	// Diff is the number of diff entries.
	Diff int

	// SectionCount is the number of distinct sections.
	SectionCount int

	// Generation is a monotonically increasing load counter, used to tie
	// caches to one corpus snapshot.
	Generation uint64
}

// Index provides O(1) exact lookups and section listings over the mapping
// corpus.
//
// Description:
//
//	The index maintains three views over the same entries:
//	  - byExact: source_api → entry (first occurrence wins across sections)
//	  - byNormalized: lowercased final segment → entries, for fuzzy matching
//	  - bySection: section → entries in corpus insertion order
//
// Thread Safety:
//
//	Index is immutable after construction and requires no locking. Entries
//	MUST NOT be mutated after the index is built. Refreshes publish a new
//	Index through Holder; they never modify an existing one.
type Index struct {
	entries      []*Entry
	byExact      map[string]*Entry
	byLower      map[string]*Entry
	byNormalized map[string][]*Entry
	bySection    map[string][]*Entry
	generation   uint64
}

// newIndex builds the lookup maps from validated entries. Entries must have
// passed Validate and per-section duplicate checks before this point.
func newIndex(entries []*Entry, generation uint64) *Index {
	idx := &Index{
		entries:      entries,
		byExact:      make(map[string]*Entry, len(entries)),
		byLower:      make(map[string]*Entry, len(entries)),
		byNormalized: make(map[string][]*Entry, len(entries)),
		bySection:    make(map[string][]*Entry),
		generation:   generation,
	}

	for _, e := range entries {
		if _, exists := idx.byExact[e.SourceAPI]; !exists {
			idx.byExact[e.SourceAPI] = e
		}
		lower := lowerASCII(e.SourceAPI)
		if _, exists := idx.byLower[lower]; !exists {
			idx.byLower[lower] = e
		}
		norm := e.NormalizedName()
		idx.byNormalized[norm] = append(idx.byNormalized[norm], e)
		idx.bySection[e.Section] = append(idx.bySection[e.Section], e)
	}

	return idx
}

// LookupExact returns the entry whose source_api equals name, case-sensitive.
//
// Description:
//
//	O(1) lookup in the primary index. When the same source_api appears in
//	multiple sections, the first entry in corpus order wins.
//
// Outputs:
//
//	*Entry - The matching entry, nil if absent.
//	bool - True if an entry was found.
func (idx *Index) LookupExact(name string) (*Entry, bool) {
	e, ok := idx.byExact[name]
	return e, ok
}

// LookupFold returns the entry whose source_api equals name ignoring case.
// Case-sensitive matches take priority via LookupExact; this is the second
// and last tier the translation engine is allowed to use.
func (idx *Index) LookupFold(name string) (*Entry, bool) {
	e, ok := idx.byLower[lowerASCII(name)]
	return e, ok
}

// Section returns the entries of one section in corpus insertion order.
//
// Outputs:
//
//	[]*Entry - Defensive copy of the section's entries, nil if the section
//	           is unknown.
func (idx *Index) Section(section string) []*Entry {
	src := idx.bySection[section]
	if len(src) == 0 {
		return nil
	}
	out := make([]*Entry, len(src))
	copy(out, src)
	return out
}

// Entries returns all entries in corpus insertion order. The returned slice
// is shared and MUST be treated as read-only.
func (idx *Index) Entries() []*Entry {
	return idx.entries
}

// Normalized returns the entries whose normalized (lowercased, namespace
// stripped) name equals norm. The returned slice is shared and read-only.
func (idx *Index) Normalized(norm string) []*Entry {
	return idx.byNormalized[norm]
}

// Generation returns the load counter this index was built with.
func (idx *Index) Generation() uint64 {
	return idx.generation
}

// Stats returns aggregate statistics for the index.
func (idx *Index) Stats() IndexStats {
	stats := IndexStats{
		TotalEntries: len(idx.entries),
		SectionCount: len(idx.bySection),
		Generation:   idx.generation,
	}
	for _, e := range idx.entries {
		switch e.Category {
		case CategoryConsistent:
			stats.Consistent++
		case CategoryDiff:
			stats.Diff++
		}
	}
	return stats
}

// Holder publishes the live Index to concurrent readers.
//
// Description:
//
//	Holder wraps an atomic pointer so that a corpus refresh is a single
//	swap: requests that already fetched the old index finish against it,
//	and no request ever observes a half-built index.
//
// Thread Safety: All methods are safe for concurrent use.
type Holder struct {
	ptr atomic.Pointer[Index]
}

// NewHolder creates a holder publishing the given index.
func NewHolder(idx *Index) *Holder {
	h := &Holder{}
	if idx != nil {
		h.ptr.Store(idx)
	}
	return h
}

// Current returns the live index, or an error if none has been published.
func (h *Holder) Current() (*Index, error) {
	idx := h.ptr.Load()
	if idx == nil {
		return nil, fmt.Errorf("corpus: no index published")
	}
	return idx, nil
}

// Swap atomically publishes idx as the live index.
func (h *Holder) Swap(idx *Index) {
	h.ptr.Store(idx)
}

// lowerASCII lowercases ASCII letters without allocating for already-lower
// strings. API names are ASCII dotted paths.
func lowerASCII(s string) string {
	hasUpper := false
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return s
	}
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
