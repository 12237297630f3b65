package reconcile

import (
	"sort"

	"github.com/voyagen/epgsync/internal/models"
)

type indexedEntry struct {
	entry models.CatalogEntry
	key   []rune
}

type catalogIndex struct {
	byID    map[string]models.CatalogEntry
	entries []indexedEntry
}

func newCatalogIndex(entries []models.CatalogEntry) *catalogIndex {
	idx := &catalogIndex{byID: make(map[string]models.CatalogEntry, len(entries))}
	for _, e := range entries {
		if cur, ok := idx.byID[e.ID]; !ok || preferEntry(e, cur) {
			idx.byID[e.ID] = e
		}
		key := matchKey(e.Name)
		if len(key) == 0 {
			continue
		}
		idx.entries = append(idx.entries, indexedEntry{entry: e, key: key})
	}
	return idx
}

// best returns the highest scoring entry for name. The result does not
// depend on any threshold, so raising the threshold can only drop matches.
func (c *catalogIndex) best(name string) (models.CatalogEntry, float64, bool) {
	key := matchKey(name)
	if len(key) == 0 {
		return models.CatalogEntry{}, 0, false
	}
	var (
		best      models.CatalogEntry
		bestScore float64
		found     bool
	)
	for _, ie := range c.entries {
		score := keyRatio(key, ie.key)
		if !found || score > bestScore || (score == bestScore && preferEntry(ie.entry, best)) {
			best, bestScore, found = ie.entry, score, true
		}
	}
	return best, bestScore, found
}

// preferEntry orders equally good entries: the most recently refreshed
// source first, then the smaller EPG id, then the smaller source id.
func preferEntry(a, b models.CatalogEntry) bool {
	switch {
	case a.SourceUpdated != nil && b.SourceUpdated == nil:
		return true
	case a.SourceUpdated == nil && b.SourceUpdated != nil:
		return false
	case a.SourceUpdated != nil && !a.SourceUpdated.Equal(*b.SourceUpdated):
		return a.SourceUpdated.After(*b.SourceUpdated)
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	return a.SourceID < b.SourceID
}

// Candidate is a catalog entry scored against a channel name.
type Candidate struct {
	Entry models.CatalogEntry `json:"entry"`
	Score float64             `json:"score"`
}

// Rank scores entries against name and returns the best limit candidates in
// the same order a fuzzy pass would prefer them. Entries scoring zero are dropped.
func Rank(name string, entries []models.CatalogEntry, limit int) []Candidate {
	key := matchKey(name)
	if len(key) == 0 {
		return nil
	}
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		score := keyRatio(key, matchKey(e.Name))
		if score <= 0 {
			continue
		}
		out = append(out, Candidate{Entry: e, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return preferEntry(out[i].Entry, out[j].Entry)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
