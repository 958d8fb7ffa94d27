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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanSource(t *testing.T, src string) []CallSite {
	t.Helper()
	ctx := context.Background()
	aliases, err := ImportAliases(ctx, []byte(src))
	require.NoError(t, err)
	sites, err := NewScanner().Scan(ctx, []byte(src), aliases)
	require.NoError(t, err)
	return sites
}

func invokedNames(sites []CallSite) []string {
	out := make([]string, len(sites))
	for i, s := range sites {
		out[i] = s.InvokedName
	}
	return out
}

func TestScanSimpleCall(t *testing.T) {
	src := "import torch\ny = torch.addmm(a, b, c)\n"
	sites := scanSource(t, src)

	require.Len(t, sites, 1)
	site := sites[0]
	assert.Equal(t, "torch.addmm", site.InvokedName)
	assert.Equal(t, "(a, b, c)", site.ArgsText)
	assert.Equal(t, 2, site.Line)
	assert.Equal(t, "torch.addmm", src[site.NameSpan.Start:site.NameSpan.End])
	assert.Equal(t, "torch.addmm(a, b, c)", src[site.Span.Start:site.Span.End])
}

func TestScanAliasedCall(t *testing.T) {
	src := "import torch as t\ny = t.addmm(a, b, c)\n"
	sites := scanSource(t, src)

	require.Len(t, sites, 1)
	assert.Equal(t, "torch.addmm", sites[0].InvokedName)
	assert.Equal(t, "t.addmm", src[sites[0].NameSpan.Start:sites[0].NameSpan.End])
}

func TestScanFromImportCall(t *testing.T) {
	src := "from torch import nn\nd = nn.Dropout(0.5)\n"
	sites := scanSource(t, src)

	require.Len(t, sites, 1)
	assert.Equal(t, "torch.nn.Dropout", sites[0].InvokedName)
}

func TestScanNestedCalls(t *testing.T) {
	src := "import torch\ny = torch.abs(torch.addmm(a, b, c))\n"
	sites := scanSource(t, src)

	require.Len(t, sites, 2)
	// Source order: outer call starts before inner.
	assert.Equal(t, "torch.abs", sites[0].InvokedName)
	assert.Equal(t, "torch.addmm", sites[1].InvokedName)
	assert.Less(t, sites[0].Span.Start, sites[1].Span.Start)
}

func TestScanBareIdentifierCall(t *testing.T) {
	sites := scanSource(t, "print(x)\n")
	require.Len(t, sites, 1)
	assert.Equal(t, "print", sites[0].InvokedName)
}

func TestScanNoCalls(t *testing.T) {
	sites := scanSource(t, "x = 1 + 2\n")
	assert.Empty(t, sites)
}

func TestScanStringAndCommentImmunity(t *testing.T) {
	src := "import torch\n" +
		"# torch.addmm(a, b, c)\n" +
		"s = \"torch.addmm(a, b, c)\"\n" +
		"doc = '''torch.addmm(x, y, z)'''\n"
	sites := scanSource(t, src)
	assert.Empty(t, sites, "call-like text inside strings and comments is not a call site")
}

func TestScanSkipsNonIdentifierChains(t *testing.T) {
	src := "import torch\n" +
		"y = xs[0].addmm(a, b)\n" +
		"z = get_fn()(a)\n"
	sites := scanSource(t, src)
	// get_fn itself is a plain identifier call; the two chained/subscripted
	// invocations are not.
	require.Len(t, sites, 1)
	assert.Equal(t, "get_fn", sites[0].InvokedName)
}

func TestScanUnterminatedString(t *testing.T) {
	src := "import torch\ns = \"abc\ny = torch.addmm(a, b, c)\n"
	sites, err := NewScanner().Scan(context.Background(), []byte(src), nil)

	require.Error(t, err)
	assert.Nil(t, sites, "no partial result on unscannable input")

	var uerr *UnscannableError
	require.ErrorAs(t, err, &uerr)
	assert.ErrorIs(t, err, ErrUnscannable)
	assert.GreaterOrEqual(t, uerr.Offset, 0)
}

func TestScanInvalidUTF8(t *testing.T) {
	src := append([]byte("x = 1\n"), 0xff, 0xfe)
	_, err := NewScanner().Scan(context.Background(), src, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidContent)

	var uerr *UnscannableError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 6, uerr.Offset)
}

func TestScanSourceTooLarge(t *testing.T) {
	s := NewScanner(WithMaxSourceSize(16))
	_, err := s.Scan(context.Background(), []byte("y = torch.addmm(a, b, c)\n"), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceTooLarge)
}

func TestScanMethodChainOnModulePath(t *testing.T) {
	src := "import torch\ny = torch.nn.functional.relu(x)\n"
	sites := scanSource(t, src)

	require.Len(t, sites, 1)
	assert.Equal(t, "torch.nn.functional.relu", sites[0].InvokedName)
}

func TestScanMultipleCallsOrdered(t *testing.T) {
	src := "import torch\n" +
		"a = torch.abs(x)\n" +
		"b = torch.addmm(p, q, r)\n" +
		"c = torch.abs(y)\n"
	sites := scanSource(t, src)

	require.Len(t, sites, 3)
	assert.Equal(t, []string{"torch.abs", "torch.addmm", "torch.abs"}, invokedNames(sites))
	for i := 1; i < len(sites); i++ {
		assert.Greater(t, sites[i].Span.Start, sites[i-1].Span.End)
	}
}
