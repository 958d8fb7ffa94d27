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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("msbridge.mapping.corpus")

// MaxCorpusFileSize caps one corpus file. The full official mapping table
// is under 2MB; anything larger is a fetch gone wrong.
const MaxCorpusFileSize = 32 * 1024 * 1024

// loadCounter feeds Index.Generation across refreshes.
var loadCounter atomic.Uint64

// Paths locates the corpus on disk.
//
// Description:
//
//	The corpus is sharded the way the upstream fetcher writes it: two base
//	files holding the flattened consistent/diff tables, plus optional
//	per-section shard directories where the file stem names the section
//	(e.g. convert/consistent/torch_tensor.json). Sharding is a storage
//	layout choice only — the loader flattens everything into one record
//	stream before indexing.
type Paths struct {
	// ConsistentFile is the base consistent mapping file. Required.
	ConsistentFile string

	// DiffFile is the base diff mapping file. Required.
	DiffFile string

	// SectionConsistentDir holds per-section consistent shards. Optional.
	SectionConsistentDir string

	// SectionDiffDir holds per-section diff shards. Optional.
	SectionDiffDir string
}

// corpusFile is the on-disk shape of one corpus file.
type corpusFile struct {
	Version string      `json:"version,omitempty"`
	Items   []rawRecord `json:"items"`
}

// rawRecord is one row as written by the upstream mapping fetcher. Field
// names follow the fetcher's schema, not the internal Entry type.
type rawRecord struct {
	Section     string `json:"section"`
	Header      string `json:"header,omitempty"`
	PyTorch     string `json:"pytorch"`
	MindSpore   string `json:"mindspore"`
	Description string `json:"description"`
}

// Load reads, validates, and indexes the whole corpus.
//
// Description:
//
//	Reads the two base files and any per-section shards (shards are read
//	concurrently, then merged in deterministic path order), converts every
//	record into a validated Entry, rejects duplicates within a section,
//	and builds an immutable Index. The load is all-or-nothing: any bad
//	record fails the whole load and no index is returned.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing. Must not be nil.
//	paths - Corpus file locations. Base files are required.
//
// Outputs:
//
//	*Index - The built index. Nil on error.
//	error - *CorpusError wrapping the first failure encountered.
//
// Thread Safety: Safe for concurrent use; each call builds its own index.
func Load(ctx context.Context, paths Paths) (*Index, error) {
	ctx, span := tracer.Start(ctx, "corpus.Load")
	defer span.End()
	start := time.Now()

	if paths.ConsistentFile == "" || paths.DiffFile == "" {
		return nil, &CorpusError{Err: fmt.Errorf("%w: base corpus files not configured", ErrMalformedCorpus)}
	}

	baseCons, err := readCorpusFile(paths.ConsistentFile)
	if err != nil {
		return nil, err
	}
	baseDiff, err := readCorpusFile(paths.DiffFile)
	if err != nil {
		return nil, err
	}

	shardCons, err := readShardDir(ctx, paths.SectionConsistentDir)
	if err != nil {
		return nil, err
	}
	shardDiff, err := readShardDir(ctx, paths.SectionDiffDir)
	if err != nil {
		return nil, err
	}

	var entries []*Entry
	seen := make(map[string]string) // section + "\x00" + source_api → file

	appendRecords := func(path string, records []rawRecord, category Category, sectionOverride string) error {
		for i, rec := range records {
			section := rec.Section
			if sectionOverride != "" {
				section = sectionOverride
			}
			e := &Entry{
				SourceAPI: strings.TrimSpace(rec.PyTorch),
				TargetAPI: strings.TrimSpace(rec.MindSpore),
				Category:  category,
				Section:   strings.TrimSpace(section),
				Note:      strings.TrimSpace(rec.Description),
			}
			if err := e.Validate(); err != nil {
				return &CorpusError{Path: path, Err: fmt.Errorf("item[%d]: %w", i, err)}
			}
			key := e.Section + "\x00" + e.SourceAPI
			if prev, dup := seen[key]; dup {
				return &CorpusError{Path: path, Err: fmt.Errorf("%w: %s (section=%s, first seen in %s)",
					ErrDuplicateEntry, e.SourceAPI, e.Section, prev)}
			}
			seen[key] = path
			entries = append(entries, e)
		}
		return nil
	}

	if err := appendRecords(paths.ConsistentFile, baseCons.Items, CategoryConsistent, ""); err != nil {
		return nil, err
	}
	if err := appendRecords(paths.DiffFile, baseDiff.Items, CategoryDiff, ""); err != nil {
		return nil, err
	}
	for _, shard := range shardCons {
		if err := appendRecords(shard.path, shard.file.Items, CategoryConsistent, shard.section); err != nil {
			return nil, err
		}
	}
	for _, shard := range shardDiff {
		if err := appendRecords(shard.path, shard.file.Items, CategoryDiff, shard.section); err != nil {
			return nil, err
		}
	}

	idx := newIndex(entries, loadCounter.Add(1))
	stats := idx.Stats()

	span.SetAttributes(
		attribute.Int("entries", stats.TotalEntries),
		attribute.Int("consistent", stats.Consistent),
		attribute.Int("diff", stats.Diff),
		attribute.Int("sections", stats.SectionCount),
	)
	slog.Info("mapping corpus loaded",
		slog.Int("entries", stats.TotalEntries),
		slog.Int("consistent", stats.Consistent),
		slog.Int("diff", stats.Diff),
		slog.Int("sections", stats.SectionCount),
		slog.Uint64("generation", stats.Generation),
		slog.Duration("duration", time.Since(start)),
	)

	return idx, nil
}

// shard pairs a parsed shard file with the section its stem names.
type shard struct {
	path    string
	section string
	file    *corpusFile
}

// readShardDir reads every *.json file in dir concurrently. A missing dir
// is not an error; a malformed shard fails the whole load.
func readShardDir(ctx context.Context, dir string) ([]shard, error) {
	if dir == "" {
		return nil, nil
	}
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &CorpusError{Path: dir, Err: fmt.Errorf("%w: %v", ErrMalformedCorpus, err)}
	}

	var paths []string
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, d.Name()))
	}
	// Deterministic merge order regardless of readdir ordering.
	sort.Strings(paths)

	shards := make([]shard, len(paths))
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			f, err := readCorpusFile(p)
			if err != nil {
				return err
			}
			stem := strings.TrimSuffix(filepath.Base(p), ".json")
			mu.Lock()
			shards[i] = shard{path: p, section: stem, file: f}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shards, nil
}

// readCorpusFile reads and decodes one corpus JSON file.
func readCorpusFile(path string) (*corpusFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &CorpusError{Path: path, Err: fmt.Errorf("%w: %v", ErrMalformedCorpus, err)}
	}
	if info.Size() > MaxCorpusFileSize {
		return nil, &CorpusError{Path: path, Err: fmt.Errorf("%w: size %d exceeds limit %d",
			ErrMalformedCorpus, info.Size(), MaxCorpusFileSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CorpusError{Path: path, Err: fmt.Errorf("%w: %v", ErrMalformedCorpus, err)}
	}

	var f corpusFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &CorpusError{Path: path, Err: fmt.Errorf("%w: %v", ErrMalformedCorpus, err)}
	}
	return &f, nil
}
