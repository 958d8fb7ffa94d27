// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msbridge-ai/msbridge/services/mapping/corpus"
)

func loadFixtureIndex(t *testing.T) *corpus.Index {
	t.Helper()
	dir := t.TempDir()

	cons := filepath.Join(dir, "consistent.json")
	require.NoError(t, os.WriteFile(cons, []byte(`{"items":[
		{"section":"torch","pytorch":"torch.addmm","mindspore":"mindspore.ops.addmm","description":""},
		{"section":"torch","pytorch":"torch.abs","mindspore":"mindspore.ops.abs","description":""},
		{"section":"torch.nn","pytorch":"torch.nn.Dropout","mindspore":"mindspore.nn.Dropout","description":""},
		{"section":"torch.nn","pytorch":"torch.nn.Dropout2d","mindspore":"mindspore.nn.Dropout2d","description":""},
		{"section":"torch","pytorch":"torch.Tensor.addmm","mindspore":"mindspore.Tensor.addmm","description":""}
	]}`), 0o644))

	diff := filepath.Join(dir, "diff.json")
	require.NoError(t, os.WriteFile(diff, []byte(`{"items":[
		{"section":"torch","pytorch":"torch.bernoulli","mindspore":"mindspore.ops.bernoulli","description":"generator arg unsupported"}
	]}`), 0o644))

	idx, err := corpus.Load(context.Background(), corpus.Paths{ConsistentFile: cons, DiffFile: diff})
	require.NoError(t, err)
	return idx
}

func sourceAPIs(entries []*corpus.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.SourceAPI
	}
	return out
}

func TestResolveExactBeatsEverything(t *testing.T) {
	r := NewResolver(loadFixtureIndex(t))
	hits := r.Resolve(context.Background(), "torch.addmm", "")
	require.NotEmpty(t, hits)
	assert.Equal(t, "torch.addmm", hits[0].SourceAPI)
}

func TestResolveCaseInsensitive(t *testing.T) {
	r := NewResolver(loadFixtureIndex(t))
	hits := r.Resolve(context.Background(), "TORCH.ADDMM", "")
	require.NotEmpty(t, hits)
	assert.Equal(t, "torch.addmm", hits[0].SourceAPI)
}

func TestResolveSuffixTier(t *testing.T) {
	r := NewResolver(loadFixtureIndex(t))
	hits := r.Resolve(context.Background(), "dropout", "")
	require.NotEmpty(t, hits)
	// Suffix match ranks above the substring-only Dropout2d.
	assert.Equal(t, "torch.nn.Dropout", hits[0].SourceAPI)
	assert.Contains(t, sourceAPIs(hits), "torch.nn.Dropout2d")
}

func TestResolveEditDistanceTier(t *testing.T) {
	r := NewResolver(loadFixtureIndex(t))
	// "admm" is one deletion away from "addmm" and matches nothing exactly.
	hits := r.Resolve(context.Background(), "admm", "")
	require.NotEmpty(t, hits)
	assert.Equal(t, "torch.addmm", hits[0].SourceAPI, "shorter SourceAPI breaks the tie")
	assert.Contains(t, sourceAPIs(hits), "torch.Tensor.addmm")
}

func TestResolveSectionFilter(t *testing.T) {
	r := NewResolver(loadFixtureIndex(t))
	hits := r.Resolve(context.Background(), "addmm", "torch.nn")
	assert.Empty(t, hits)

	hits = r.Resolve(context.Background(), "dropout", "torch.nn")
	require.NotEmpty(t, hits)
	for _, e := range hits {
		assert.Equal(t, "torch.nn", e.Section)
	}
}

func TestResolveNoMatch(t *testing.T) {
	r := NewResolver(loadFixtureIndex(t))
	assert.Empty(t, r.Resolve(context.Background(), "conv_transpose3d_with_extras", ""))
	assert.Empty(t, r.Resolve(context.Background(), "", ""))
	assert.Empty(t, r.Resolve(context.Background(), "   ", ""))
}

func TestResolveDeterministic(t *testing.T) {
	idx := loadFixtureIndex(t)
	// Caching off so every call re-ranks from scratch.
	r := NewResolver(idx, WithCacheSize(0))

	first := sourceAPIs(r.Resolve(context.Background(), "addmm", ""))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, sourceAPIs(r.Resolve(context.Background(), "addmm", "")))
	}
}

func TestResolveMaxResults(t *testing.T) {
	r := NewResolver(loadFixtureIndex(t), WithMaxResults(1))
	hits := r.Resolve(context.Background(), "addmm", "")
	assert.Len(t, hits, 1)
}

func TestResolveStrict(t *testing.T) {
	r := NewResolver(loadFixtureIndex(t))
	ctx := context.Background()

	e, ok := r.ResolveStrict(ctx, "torch.addmm")
	require.True(t, ok)
	assert.Equal(t, "mindspore.ops.addmm", e.TargetAPI)

	e, ok = r.ResolveStrict(ctx, "Torch.Addmm")
	require.True(t, ok)
	assert.Equal(t, "torch.addmm", e.SourceAPI)

	// Fuzzy never applies in strict mode.
	_, ok = r.ResolveStrict(ctx, "admm")
	assert.False(t, ok)
	_, ok = r.ResolveStrict(ctx, "addmm")
	assert.False(t, ok)
}

func TestResolveCacheHitMatchesMiss(t *testing.T) {
	r := NewResolver(loadFixtureIndex(t))
	ctx := context.Background()

	miss := sourceAPIs(r.Resolve(ctx, "dropout", ""))
	hit := sourceAPIs(r.Resolve(ctx, "dropout", ""))
	assert.Equal(t, miss, hit)
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"addmm", "addmm", 0},
		{"admm", "addmm", 1},
		{"kitten", "sitting", 3},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, levenshteinDistance(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}
