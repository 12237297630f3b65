package reconcile

import (
	"testing"

	"github.com/voyagen/epgsync/internal/models"
)

func TestRankOrdersCandidates(t *testing.T) {
	entries := []models.CatalogEntry{
		{ID: "espn2", Name: "ESPN 2", SourceID: 1},
		{ID: "espn", Name: "ESPN", SourceID: 1},
		{ID: "bbc", Name: "BBC One", SourceID: 1},
		{ID: "blank", Name: "HD", SourceID: 1},
	}
	got := Rank("ESPN HD", entries, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Entry.ID != "espn" || got[0].Score != 1 {
		t.Fatalf("unexpected best candidate: %+v", got[0])
	}
	if got[1].Entry.ID != "espn2" {
		t.Fatalf("unexpected second candidate: %+v", got[1])
	}
	if Rank("[HD]", entries, 5) != nil {
		t.Fatal("expected no candidates for a name without tokens")
	}
}

func TestCatalogIndexPrefersRecentDuplicateID(t *testing.T) {
	snap := fixtureSnapshot()
	dup := snap.Catalog[0]
	dup.SourceID = 9
	dup.SourceUpdated = nil
	dup.Name = "Stale ESPN"
	idx := newCatalogIndex(append(snap.Catalog, dup))
	if e := idx.byID["espn.us"]; e.SourceID != 1 {
		t.Fatalf("expected entry from the refreshed source, got %+v", e)
	}
}
