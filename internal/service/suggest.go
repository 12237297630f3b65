package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/voyagen/epgsync/internal/reconcile"
)

const (
	DefaultSuggestLimit = 5
	MaxSuggestLimit     = 50
	// nearest-neighbour candidates fetched per requested suggestion
	suggestFanout = 10
)

// SuggestEPG proposes catalog entries for a channel name. Candidates come
// from the name-vector index and are re-scored with the same similarity a
// fuzzy pass uses, so the first suggestion is what auto-scan would pick
// among them.
func (s *Service) SuggestEPG(ctx context.Context, name string, limit int) ([]reconcile.Candidate, error) {
	if strings.TrimSpace(name) == "" {
		return []reconcile.Candidate{}, nil
	}
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	limit = min(limit, MaxSuggestLimit)

	vec := reconcile.Fingerprint(name)
	if vec == nil {
		return []reconcile.Candidate{}, nil
	}
	entries, err := s.store.NearestCatalog(ctx, vec, limit*suggestFanout)
	if err != nil {
		return nil, fmt.Errorf("nearest catalog: %w", err)
	}
	if len(entries) == 0 {
		// entries stored before fingerprints existed
		if entries, err = s.store.ListCatalog(ctx); err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
	}
	out := reconcile.Rank(name, entries, limit)
	if out == nil {
		out = []reconcile.Candidate{}
	}
	return out, nil
}
