// Package search implements C10, the search facade: the single entrypoint
// the CLI (internal/cli) and the MCP server (internal/mcpserver) call to run
// a PQL query end to end (spec.md §4.9). It owns the read-only handle's
// lifetime and the embedding-payload decode step; internal/pql owns
// everything downstream of a fully-built SearchQuery.
package search

import (
	"context"
	"fmt"

	"github.com/panoptikon-go/panoptikon/internal/pql"
	"github.com/panoptikon-go/panoptikon/internal/storage"
)

// Facade is C10 (spec.md §4.9).
type Facade struct {
	paths storage.Paths
}

// NewFacade builds a facade bound to a store's three database paths. Every
// Search call opens and releases its own read-only handle, so concurrent
// searches never contend on a shared connection (spec.md §5 "multiple
// requests proceed in parallel on independent read-only handles").
func NewFacade(paths storage.Paths) *Facade {
	return &Facade{paths: paths}
}

// Search runs q to completion: count, then the requested page, both under
// one scoped read-only handle (spec.md §4.9 "All cursor work happens under
// a read-only handle with scoped release").
func (f *Facade) Search(ctx context.Context, q pql.SearchQuery) (*pql.Result, error) {
	h, err := storage.OpenReadOnly(f.paths)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer h.Close()

	compiler := pql.NewCompiler(h.DB)

	countQuery := q
	countQuery.Count = true
	countResult, err := compiler.Execute(ctx, countQuery)
	if err != nil {
		return nil, fmt.Errorf("search: count: %w", err)
	}

	pageQuery := q
	pageQuery.Count = false
	pageResult, err := compiler.Execute(ctx, pageQuery)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	pageResult.Count = countResult.Count
	return pageResult, nil
}

// DecodeSimilarityEmbeddings walks q's filter tree and, for every
// TextEmbeddingQueryFilter, replaces its EmbeddingBlob (a wire-boundary
// base64 npy payload, carried as raw bytes by callers building a SearchQuery
// from request parameters) with the store's native serialized blob
// (spec.md §4.9, §6 "Embedding wire encoding"). SimilarToFilter needs no such
// step: it targets a stored item by sha256, not a client-supplied vector.
//
// Callers building a SearchQuery programmatically (tests, the CLI's
// flag-driven path) that already hold a native blob should skip this step.
func DecodeSimilarityEmbeddings(q *pql.SearchQuery) error {
	return walkNodes(q.Query, func(n pql.Node) error {
		te, ok := n.(*pql.TextEmbeddingQueryFilter)
		if !ok || len(te.EmbeddingBlob) == 0 {
			return nil
		}
		decoded, err := DecodeEmbeddingPayload(string(te.EmbeddingBlob))
		if err != nil {
			return err
		}
		te.EmbeddingBlob = decoded
		return nil
	})
}

// walkNodes visits every node in a filter tree, descending into the
// boolean combinators (spec.md §4.6's And/Or/Not).
func walkNodes(n pql.Node, visit func(pql.Node) error) error {
	if n == nil {
		return nil
	}
	if err := visit(n); err != nil {
		return err
	}
	switch t := n.(type) {
	case *pql.And:
		for _, c := range t.Children {
			if err := walkNodes(c, visit); err != nil {
				return err
			}
		}
	case *pql.Or:
		for _, c := range t.Children {
			if err := walkNodes(c, visit); err != nil {
				return err
			}
		}
	case *pql.Not:
		return walkNodes(t.Child, visit)
	}
	return nil
}
