// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mapping wires the corpus, resolver, scanner, translation engine,
// and model registry into one HTTP-facing service.
package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/msbridge-ai/msbridge/services/mapping/config"
	"github.com/msbridge-ai/msbridge/services/mapping/corpus"
	"github.com/msbridge-ai/msbridge/services/mapping/registry"
	"github.com/msbridge-ai/msbridge/services/mapping/resolve"
	"github.com/msbridge-ai/msbridge/services/mapping/scan"
	"github.com/msbridge-ai/msbridge/services/mapping/translate"
)

// Service owns the live corpus snapshot and its collaborators.
//
// Description:
//
//	The corpus index and its resolver are published together through an
//	atomic pointer: a refresh builds both off to the side and swaps them
//	in one store. Requests grab the pair once at entry and work against
//	that snapshot to completion, so a refresh mid-request is invisible.
//
// Thread Safety: All methods are safe for concurrent use. Refresh is
// serialized internally.
type Service struct {
	cfg    *config.Config
	engine *translate.Engine
	models *registry.Registry

	// holder publishes the live corpus index; resolver is rebuilt against
	// each published index so its cache dies with the old snapshot.
	holder   *corpus.Holder
	resolver atomic.Pointer[resolve.Resolver]

	// refreshMu serializes corpus reloads, not reads.
	refreshMu sync.Mutex
}

// NewService loads the corpus (and registry, when enabled) and returns a
// ready service.
//
// Inputs:
//
//	ctx - Context for the initial corpus load.
//	cfg - Validated configuration. Must not be nil.
//
// Outputs:
//
//	*Service - Ready to serve. Nil on error.
//	error - Corpus or registry load failure; startup should abort.
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mapping: cfg must not be nil")
	}

	s := &Service{
		cfg:    cfg,
		holder: corpus.NewHolder(nil),
		engine: translate.NewEngine(
			translate.WithScanner(scan.NewScanner(scan.WithMaxSourceSize(cfg.Scanner.MaxSourceBytes))),
		),
	}

	idx, err := corpus.Load(ctx, s.corpusPaths())
	if err != nil {
		return nil, err
	}
	s.publish(idx)

	if cfg.Registry.Enabled {
		models, err := registry.Open(cfg.Registry.ModelsFile)
		if err != nil {
			return nil, err
		}
		s.models = models
	}
	return s, nil
}

func (s *Service) corpusPaths() corpus.Paths {
	return corpus.Paths{
		ConsistentFile:       s.cfg.Corpus.ConsistentFile,
		DiffFile:             s.cfg.Corpus.DiffFile,
		SectionConsistentDir: s.cfg.Corpus.SectionConsistentDir,
		SectionDiffDir:       s.cfg.Corpus.SectionDiffDir,
	}
}

// publish swaps in idx and a resolver built over it, then updates the
// gauges. In-flight requests keep whichever snapshot they already fetched.
func (s *Service) publish(idx *corpus.Index) {
	s.holder.Swap(idx)
	s.resolver.Store(resolve.NewResolver(idx,
		resolve.WithCacheSize(s.cfg.Resolver.CacheSize),
		resolve.WithMaxResults(s.cfg.Resolver.MaxResults),
	))
	stats := idx.Stats()
	recordCorpusStats(stats.Consistent, stats.Diff)
}

// Resolver returns the current corpus snapshot's resolver. Callers must
// use the returned value for the whole request rather than re-fetching.
func (s *Service) Resolver() *resolve.Resolver {
	return s.resolver.Load()
}

// Registry returns the model registry, nil when disabled.
func (s *Service) Registry() *registry.Registry {
	return s.models
}

// Index returns the live corpus index.
func (s *Service) Index() (*corpus.Index, error) {
	return s.holder.Current()
}

// Stats returns statistics for the live corpus index.
func (s *Service) Stats() corpus.IndexStats {
	return s.Resolver().Index().Stats()
}

// QueryOps resolves a query against the live corpus.
func (s *Service) QueryOps(ctx context.Context, name, section string) []*corpus.Entry {
	return s.Resolver().Resolve(ctx, name, section)
}

// Translate rewrites src against the live corpus snapshot.
func (s *Service) Translate(ctx context.Context, src string) (string, *translate.Report, error) {
	start := time.Now()
	out, report, err := s.engine.Translate(ctx, s.Resolver(), src)
	if err != nil {
		return "", nil, err
	}

	metricTranslateDuration.Observe(time.Since(start).Seconds())
	metricTranslateSites.WithLabelValues("substituted").Add(float64(len(report.Substituted)))
	metricTranslateSites.WithLabelValues("annotated").Add(float64(len(report.Annotated)))
	metricTranslateSites.WithLabelValues("unresolved").Add(float64(len(report.Unresolved)))
	return out, report, nil
}

// Diagnose checks a finished translation against the live corpus snapshot.
func (s *Service) Diagnose(ctx context.Context, original, translated, section string) (*translate.Diagnosis, error) {
	return s.engine.Diagnose(ctx, s.Resolver(), original, translated, section)
}

// Refresh reloads the corpus and registry and atomically publishes them.
//
// Description:
//
//	Builds a complete new index before touching anything live. On any
//	failure the previous snapshot stays published and the error is
//	returned; a refresh can never leave the service with a partial or
//	missing index.
func (s *Service) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	ctx, span := tracer.Start(ctx, "mapping.Refresh")
	defer span.End()

	idx, err := corpus.Load(ctx, s.corpusPaths())
	if err != nil {
		metricRefreshes.WithLabelValues("error").Inc()
		slog.Error("corpus refresh failed, previous index stays live", slog.Any("error", err))
		return err
	}
	s.publish(idx)

	if s.models != nil {
		if err := s.models.Refresh(); err != nil {
			metricRefreshes.WithLabelValues("error").Inc()
			slog.Error("registry refresh failed, previous snapshot stays live", slog.Any("error", err))
			return err
		}
	}

	metricRefreshes.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.Int64("generation", int64(idx.Generation())))
	slog.Info("mapping snapshots refreshed", slog.Uint64("generation", idx.Generation()))
	return nil
}

// Ready reports whether the service has a published index.
func (s *Service) Ready() bool {
	_, err := s.holder.Current()
	return err == nil
}
