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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testdataPaths() Paths {
	return Paths{
		ConsistentFile:       filepath.Join("testdata", "pytorch_ms_api_mapping_consistent.json"),
		DiffFile:             filepath.Join("testdata", "pytorch_ms_api_mapping_diff.json"),
		SectionConsistentDir: filepath.Join("testdata", "convert", "consistent"),
		SectionDiffDir:       filepath.Join("testdata", "convert", "diff"),
	}
}

func writeCorpus(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Testdata(t *testing.T) {
	idx, err := Load(context.Background(), testdataPaths())
	require.NoError(t, err)
	require.NotNil(t, idx)

	stats := idx.Stats()
	assert.Equal(t, 7, stats.TotalEntries)
	assert.Equal(t, 4, stats.Consistent)
	assert.Equal(t, 3, stats.Diff)

	e, ok := idx.LookupExact("torch.addmm")
	require.True(t, ok)
	assert.Equal(t, "mindspore.ops.addmm", e.TargetAPI)
	assert.Equal(t, CategoryConsistent, e.Category)

	// Shard file stem supplies the section.
	e, ok = idx.LookupExact("torch.Tensor.scatter_")
	require.True(t, ok)
	assert.Equal(t, "torch_tensor", e.Section)
	assert.Equal(t, CategoryDiff, e.Category)
	assert.NotEmpty(t, e.Note)
}

func TestLoad_MissingBaseFile(t *testing.T) {
	paths := testdataPaths()
	paths.DiffFile = filepath.Join("testdata", "no_such_file.json")

	_, err := Load(context.Background(), paths)
	require.Error(t, err)

	var cerr *CorpusError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, ErrMalformedCorpus)
}

func TestLoad_MissingShardDirsTolerated(t *testing.T) {
	paths := testdataPaths()
	paths.SectionConsistentDir = filepath.Join("testdata", "no_such_dir")
	paths.SectionDiffDir = ""

	idx, err := Load(context.Background(), paths)
	require.NoError(t, err)
	assert.Equal(t, 5, idx.Stats().TotalEntries)
}

func TestLoad_DiffWithEmptyNoteFailsWholeLoad(t *testing.T) {
	dir := t.TempDir()
	cons := writeCorpus(t, dir, "consistent.json",
		`{"items":[{"section":"torch","pytorch":"torch.abs","mindspore":"mindspore.ops.abs","description":""}]}`)
	diff := writeCorpus(t, dir, "diff.json",
		`{"items":[{"section":"torch","pytorch":"torch.bernoulli","mindspore":"mindspore.ops.bernoulli","description":""}]}`)

	idx, err := Load(context.Background(), Paths{ConsistentFile: cons, DiffFile: diff})
	require.Error(t, err)
	assert.Nil(t, idx)
	assert.ErrorIs(t, err, ErrEmptyDiffNote)

	var cerr *CorpusError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, diff, cerr.Path)
}

func TestLoad_DuplicateWithinSection(t *testing.T) {
	dir := t.TempDir()
	cons := writeCorpus(t, dir, "consistent.json",
		`{"items":[
			{"section":"torch","pytorch":"torch.abs","mindspore":"mindspore.ops.abs","description":""},
			{"section":"torch","pytorch":"torch.abs","mindspore":"mindspore.ops.absolute","description":""}
		]}`)
	diff := writeCorpus(t, dir, "diff.json", `{"items":[]}`)

	_, err := Load(context.Background(), Paths{ConsistentFile: cons, DiffFile: diff})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateEntry)
}

func TestLoad_SameNameAcrossSectionsAllowed(t *testing.T) {
	dir := t.TempDir()
	cons := writeCorpus(t, dir, "consistent.json",
		`{"items":[
			{"section":"torch","pytorch":"torch.abs","mindspore":"mindspore.ops.abs","description":""},
			{"section":"torch.special","pytorch":"torch.abs","mindspore":"mindspore.ops.abs","description":""}
		]}`)
	diff := writeCorpus(t, dir, "diff.json", `{"items":[]}`)

	idx, err := Load(context.Background(), Paths{ConsistentFile: cons, DiffFile: diff})
	require.NoError(t, err)

	// First corpus occurrence wins for exact lookup.
	e, ok := idx.LookupExact("torch.abs")
	require.True(t, ok)
	assert.Equal(t, "torch", e.Section)
	assert.Len(t, idx.Section("torch.special"), 1)
}

func TestLoad_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	cons := writeCorpus(t, dir, "consistent.json", `{"items": [`)
	diff := writeCorpus(t, dir, "diff.json", `{"items":[]}`)

	_, err := Load(context.Background(), Paths{ConsistentFile: cons, DiffFile: diff})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedCorpus)
}

func TestLoad_MissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	cons := writeCorpus(t, dir, "consistent.json",
		`{"items":[{"section":"torch","pytorch":"","mindspore":"mindspore.ops.abs","description":""}]}`)
	diff := writeCorpus(t, dir, "diff.json", `{"items":[]}`)

	_, err := Load(context.Background(), Paths{ConsistentFile: cons, DiffFile: diff})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestLoad_GenerationIncreases(t *testing.T) {
	ctx := context.Background()
	first, err := Load(ctx, testdataPaths())
	require.NoError(t, err)
	second, err := Load(ctx, testdataPaths())
	require.NoError(t, err)

	assert.Greater(t, second.Generation(), first.Generation())
}

func TestEntryValidate(t *testing.T) {
	tests := []struct {
		name    string
		entry   Entry
		wantErr error
	}{
		{
			name:  "valid consistent",
			entry: Entry{SourceAPI: "torch.abs", TargetAPI: "mindspore.ops.abs", Category: CategoryConsistent, Section: "torch"},
		},
		{
			name:  "valid diff with note",
			entry: Entry{SourceAPI: "torch.bernoulli", TargetAPI: "mindspore.ops.bernoulli", Category: CategoryDiff, Section: "torch", Note: "dtype differs"},
		},
		{
			name:    "missing source",
			entry:   Entry{Category: CategoryConsistent, Section: "torch"},
			wantErr: ErrMissingField,
		},
		{
			name:    "unknown category",
			entry:   Entry{SourceAPI: "torch.abs", Category: "partial", Section: "torch"},
			wantErr: ErrUnknownCategory,
		},
		{
			name:    "diff without note",
			entry:   Entry{SourceAPI: "torch.abs", Category: CategoryDiff, Section: "torch"},
			wantErr: ErrEmptyDiffNote,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.entry.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.wantErr), "want %v, got %v", tc.wantErr, err)
		})
	}
}
