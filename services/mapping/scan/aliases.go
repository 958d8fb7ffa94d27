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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ImportAliases derives the local-name → dotted-module-path table from the
// buffer's own import statements.
//
// Description:
//
//	The table maps every name an import binds in the module scope to the
//	dotted path it stands for:
//
//	  import torch            → torch: torch
//	  import torch.nn         → torch: torch (only the top name is bound)
//	  import torch as t       → t: torch
//	  import torch.nn as nn   → nn: torch.nn
//	  from torch import nn    → nn: torch.nn
//	  from torch import nn as n → n: torch.nn
//
//	Wildcard imports (from x import *) and relative imports (from . import
//	y) bind names that cannot be mapped to a canonical dotted path, so they
//	are ignored. The scanner is handed this table rather than inferring
//	imports itself; callers with out-of-band alias knowledge can extend it.
//
// Outputs:
//
//	map[string]string - Alias table, possibly empty, never nil.
//	error - *UnscannableError if the buffer cannot be parsed at all.
func ImportAliases(ctx context.Context, src []byte) (map[string]string, error) {
	root, err := parse(ctx, src)
	if err != nil {
		return nil, err
	}

	aliases := make(map[string]string)
	walk(root, func(node *sitter.Node) bool {
		switch node.Type() {
		case "import_statement":
			collectImport(node, src, aliases)
			return false
		case "import_from_statement":
			collectFromImport(node, src, aliases)
			return false
		}
		return true
	})
	return aliases, nil
}

// collectImport handles `import a.b [as c], d [as e], ...`.
func collectImport(node *sitter.Node, src []byte, aliases map[string]string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			// A plain `import a.b` binds only the top-level name `a`.
			full := child.Content(src)
			top := full
			if dot := strings.IndexByte(full, '.'); dot >= 0 {
				top = full[:dot]
			}
			aliases[top] = top
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil && alias != nil {
				aliases[alias.Content(src)] = name.Content(src)
			}
		}
	}
}

// collectFromImport handles `from a.b import c [as d], ...`.
func collectFromImport(node *sitter.Node, src []byte, aliases map[string]string) {
	module := node.ChildByFieldName("module_name")
	if module == nil || module.Type() != "dotted_name" {
		// Relative imports have no absolute path to resolve against.
		return
	}
	modulePath := module.Content(src)

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		// NamedChild wraps nodes freshly on every call, so pointer
		// comparison against module would never match.
		if child.StartByte() == module.StartByte() && child.EndByte() == module.EndByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			name := child.Content(src)
			aliases[name] = modulePath + "." + name
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil && alias != nil {
				aliases[alias.Content(src)] = modulePath + "." + name.Content(src)
			}
		case "wildcard_import":
			// `from x import *` binds unknowable names.
		}
	}
}

// walk traverses the tree depth-first. visit returns false to skip the
// node's children.
func walk(node *sitter.Node, visit func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	if !visit(node) {
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walk(node.NamedChild(i), visit)
	}
}
