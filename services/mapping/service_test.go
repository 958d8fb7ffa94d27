// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mapping

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msbridge-ai/msbridge/services/mapping/config"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8096, Mode: "test", ShutdownTimeoutSeconds: 5},
		Corpus: config.CorpusConfig{
			ConsistentFile: write("consistent.json", testConsistent),
			DiffFile:       write("diff.json", testDiff),
		},
		Resolver: config.ResolverConfig{CacheSize: 16, MaxResults: 20},
		Scanner:  config.ScannerConfig{MaxSourceBytes: 1 << 20},
	}

	svc, err := NewService(context.Background(), cfg)
	require.NoError(t, err)
	return svc, dir
}

func TestNewServiceNilConfig(t *testing.T) {
	_, err := NewService(context.Background(), nil)
	assert.Error(t, err)
}

func TestServiceReadyAndIndex(t *testing.T) {
	svc, _ := newTestService(t)

	assert.True(t, svc.Ready())
	idx, err := svc.Index()
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Stats().TotalEntries)
	assert.Nil(t, svc.Registry())
}

func TestServiceRefreshBumpsGeneration(t *testing.T) {
	svc, _ := newTestService(t)

	before := svc.Stats().Generation
	require.NoError(t, svc.Refresh(context.Background()))
	assert.Greater(t, svc.Stats().Generation, before)
}

func TestServiceConcurrentTranslateDuringRefresh(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				out, report, err := svc.Translate(ctx, "import torch\ny = torch.addmm(a, b, c)\n")
				if !assert.NoError(t, err) {
					return
				}
				assert.Len(t, report.Substituted, 1)
				assert.Contains(t, out, "mindspore.ops.addmm")
			}
		}()
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Refresh(ctx))
	}
	wg.Wait()
}
