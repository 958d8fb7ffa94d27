// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve ranks mapping corpus entries against free-text queries.
//
// Matching runs in five strictly ordered tiers: exact, case-insensitive
// exact, suffix (final dotted segment), substring, and bounded edit
// distance. A hit in a higher tier always outranks any hit in a lower one,
// and ties within a tier break on shorter source name then lexical order,
// so results are fully deterministic for a given corpus snapshot.
package resolve

import (
	"context"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/msbridge-ai/msbridge/services/mapping/corpus"
)

var tracer = otel.Tracer("msbridge.mapping.resolve")

// Match tiers, lower is better. The tier is the dominant rank component;
// length and lexical order only break ties within one tier.
const (
	tierExact       = 0
	tierFold        = 1
	tierSuffix      = 2
	tierSubstring   = 3
	tierEditDist    = 4
	tierNoMatch     = -1
	defaultMaxHits  = 20
	defaultCacheCap = 512
)

// cacheKey identifies one resolution in the LRU cache. A Resolver is bound
// to a single index generation, so the key needs no generation component.
type cacheKey struct {
	query   string
	section string
}

// Resolver resolves queries against one immutable corpus index.
//
// Description:
//
//	A Resolver is constructed per index generation and discarded on corpus
//	refresh. Cached results therefore never go stale: the cache lives and
//	dies with its index.
//
// Thread Safety: Safe for concurrent use.
type Resolver struct {
	idx     *corpus.Index
	cache   *lru.Cache[cacheKey, []*corpus.Entry]
	maxHits int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxResults caps how many ranked entries Resolve returns.
func WithMaxResults(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxHits = n
		}
	}
}

// WithCacheSize sets the LRU capacity. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(r *Resolver) {
		if n <= 0 {
			r.cache = nil
			return
		}
		cache, err := lru.New[cacheKey, []*corpus.Entry](n)
		if err == nil {
			r.cache = cache
		}
	}
}

// NewResolver creates a resolver bound to idx.
func NewResolver(idx *corpus.Index, opts ...Option) *Resolver {
	r := &Resolver{idx: idx, maxHits: defaultMaxHits}
	cache, err := lru.New[cacheKey, []*corpus.Entry](defaultCacheCap)
	if err == nil {
		r.cache = cache
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Index returns the corpus index this resolver is bound to.
func (r *Resolver) Index() *corpus.Index {
	return r.idx
}

// Resolve returns corpus entries ranked against query.
//
// Description:
//
//	Runs the full five-tier match over the index (optionally restricted to
//	one section), ranks by tier then by shorter source name then lexical
//	order, and caps the result at the configured maximum. An empty result
//	means no match; it is never an error.
//
// Inputs:
//
//	ctx - Context for tracing.
//	query - Free-text or dotted API name. Whitespace is trimmed.
//	section - Optional section filter, empty for the whole corpus.
//
// Outputs:
//
//	[]*corpus.Entry - Ranked matches, best first. Never nil on a hit,
//	                  empty slice on no match.
func (r *Resolver) Resolve(ctx context.Context, query, section string) []*corpus.Entry {
	_, span := tracer.Start(ctx, "resolve.Resolve")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	key := cacheKey{query: query, section: section}
	if r.cache != nil {
		if hits, ok := r.cache.Get(key); ok {
			span.SetAttributes(attribute.Bool("cache_hit", true), attribute.Int("hits", len(hits)))
			return hits
		}
	}

	hits := r.rank(query, section)
	if len(hits) > r.maxHits {
		hits = hits[:r.maxHits]
	}

	if r.cache != nil {
		r.cache.Add(key, hits)
	}
	span.SetAttributes(attribute.Bool("cache_hit", false), attribute.Int("hits", len(hits)))
	return hits
}

// ResolveStrict resolves name using the exact and case-insensitive tiers
// only. This is the entry point the translation engine uses: fuzzy tiers
// must never pick the API that gets substituted into someone's code.
func (r *Resolver) ResolveStrict(_ context.Context, name string) (*corpus.Entry, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	if e, ok := r.idx.LookupExact(name); ok {
		return e, true
	}
	if e, ok := r.idx.LookupFold(name); ok {
		return e, true
	}
	return nil, false
}

// scored pairs an entry with its rank components for sorting.
type scored struct {
	entry *corpus.Entry
	tier  int
}

// rank scores every candidate entry and returns the sorted survivors.
func (r *Resolver) rank(query, section string) []*corpus.Entry {
	qLower := strings.ToLower(query)
	qNorm := corpus.NormalizeName(query)
	// Distance tolerance scales with query length: a four-character query
	// allows one edit, an eight-character query two.
	maxDist := (len(qNorm) + 3) / 4

	var candidates []*corpus.Entry
	if section != "" {
		candidates = r.idx.Section(section)
	} else {
		candidates = r.idx.Entries()
	}

	matches := make([]scored, 0, 8)
	for _, e := range candidates {
		tier := matchTier(query, qLower, qNorm, maxDist, e)
		if tier == tierNoMatch {
			continue
		}
		matches = append(matches, scored{entry: e, tier: tier})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].tier != matches[j].tier {
			return matches[i].tier < matches[j].tier
		}
		li, lj := len(matches[i].entry.SourceAPI), len(matches[j].entry.SourceAPI)
		if li != lj {
			return li < lj
		}
		return matches[i].entry.SourceAPI < matches[j].entry.SourceAPI
	})

	out := make([]*corpus.Entry, len(matches))
	for i, m := range matches {
		out[i] = m.entry
	}
	return out
}

// matchTier classifies how well entry e matches the query, returning the
// best (lowest) applicable tier or tierNoMatch.
func matchTier(query, qLower, qNorm string, maxDist int, e *corpus.Entry) int {
	if e.SourceAPI == query {
		return tierExact
	}
	srcLower := strings.ToLower(e.SourceAPI)
	if srcLower == qLower {
		return tierFold
	}
	norm := e.NormalizedName()
	if norm == qNorm {
		return tierSuffix
	}
	if strings.Contains(srcLower, qLower) {
		return tierSubstring
	}
	if maxDist > 0 && levenshteinDistance(qNorm, norm) <= maxDist {
		return tierEditDist
	}
	return tierNoMatch
}

// levenshteinDistance computes edit distance with a two-row rolling table.
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := 0; j <= len(s2); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

func minInt(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
