// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry serves the MindSpore official model catalog.
//
// The registry is a flat, read-only list of model records loaded from one
// JSON file. Like the mapping corpus, a refresh builds a whole new snapshot
// and publishes it with an atomic pointer swap; it is never mutated in
// place and there is no module-level cache.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// ErrModelNotFound indicates no model matches the requested id or name.
var ErrModelNotFound = errors.New("model not found in registry")

// Model is one catalog record. Structured sub-documents (variants, links,
// metrics) are carried as raw JSON: the registry filters on the scalar
// fields and passes the rest through untouched.
type Model struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Group    string          `json:"group,omitempty"`
	Category string          `json:"category,omitempty"`
	Task     []string        `json:"task,omitempty"`
	Suite    string          `json:"suite,omitempty"`
	Variants json.RawMessage `json:"variants,omitempty"`
	Links    json.RawMessage `json:"links,omitempty"`
	Dataset  json.RawMessage `json:"dataset,omitempty"`
	Metrics  json.RawMessage `json:"metrics,omitempty"`
	Hardware json.RawMessage `json:"hardware,omitempty"`
}

// Filter selects models in ListModels. Zero values mean "no constraint".
type Filter struct {
	// Group, Category, Suite match their field case-insensitively.
	Group    string
	Category string
	Suite    string

	// Task matches if the model's task list contains it, case-insensitive.
	Task string

	// Keyword matches as a case-insensitive substring of id or name.
	Keyword string
}

// snapshot is one immutable view of the registry file.
type snapshot struct {
	version string
	models  []Model
}

// registryFile is the on-disk shape.
type registryFile struct {
	Version string  `json:"version"`
	Models  []Model `json:"models"`
}

// Registry is an explicitly owned, atomically refreshable model catalog.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	path string
	snap atomic.Pointer[snapshot]
}

// Open loads the registry file at path.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh re-reads the registry file and atomically swaps the snapshot.
// On failure the previous snapshot stays live.
func (r *Registry) Refresh() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("registry %s: %w", r.path, err)
	}

	var f registryFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("registry %s: %w", r.path, err)
	}
	if f.Models == nil {
		return fmt.Errorf("registry %s: missing models array", r.path)
	}

	r.snap.Store(&snapshot{version: f.Version, models: f.Models})
	slog.Info("model registry loaded",
		slog.String("path", r.path),
		slog.String("version", f.Version),
		slog.Int("models", len(f.Models)),
	)
	return nil
}

// Version returns the loaded registry version string.
func (r *Registry) Version() string {
	return r.snap.Load().version
}

// ListModels returns the models matching filter, in file order.
//
// Outputs:
//
//	[]Model - Matching records, empty slice when nothing matches. The
//	          slice is freshly allocated; the records share the snapshot's
//	          raw JSON sub-documents, which are read-only.
func (r *Registry) ListModels(filter Filter) []Model {
	snap := r.snap.Load()

	out := make([]Model, 0, len(snap.models))
	for _, m := range snap.models {
		if matches(&m, filter) {
			out = append(out, m)
		}
	}
	return out
}

// GetModelInfo returns the full record for a model by id or name,
// case-insensitive.
func (r *Registry) GetModelInfo(idOrName string) (Model, error) {
	snap := r.snap.Load()
	needle := strings.ToLower(strings.TrimSpace(idOrName))

	for _, m := range snap.models {
		if strings.ToLower(m.ID) == needle || strings.ToLower(m.Name) == needle {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %q (version=%s)", ErrModelNotFound, idOrName, snap.version)
}

func matches(m *Model, f Filter) bool {
	if f.Group != "" && !strings.EqualFold(m.Group, f.Group) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(m.Category, f.Category) {
		return false
	}
	if f.Suite != "" && !strings.EqualFold(m.Suite, f.Suite) {
		return false
	}
	if f.Task != "" {
		found := false
		for _, task := range m.Task {
			if strings.EqualFold(task, f.Task) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Keyword != "" {
		kw := strings.ToLower(f.Keyword)
		if !strings.Contains(strings.ToLower(m.ID), kw) &&
			!strings.Contains(strings.ToLower(m.Name), kw) {
			return false
		}
	}
	return true
}
