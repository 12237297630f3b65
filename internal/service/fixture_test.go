package service

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/passlock"
	"github.com/voyagen/epgsync/internal/reconcile"
	"github.com/voyagen/epgsync/internal/store"
	"github.com/voyagen/epgsync/internal/testsupport"
)

func str(s string) *string { return &s }

func seedStore() *testsupport.MemStore {
	ms := testsupport.NewMemStore()
	refreshed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ms.AddSource(models.EPGSource{URL: "http://guide.example/epg.xml", Name: "guide", Enabled: true, LastUpdated: &refreshed},
		models.CatalogEntry{ID: "espn.us", Name: "ESPN", Icon: "http://logo/espn.png", NameVector: reconcile.Fingerprint("ESPN")},
		models.CatalogEntry{ID: "dazn1.es", Name: "DAZN 1", Icon: "http://logo/dazn1.png", NameVector: reconcile.Fingerprint("DAZN 1")},
		models.CatalogEntry{ID: "bbc1.uk", Name: "BBC One", NameVector: reconcile.Fingerprint("BBC One")},
	)
	ms.AddChannels(
		models.Channel{ID: "a", Name: "ESPN HD"},
		models.Channel{ID: "b", Name: "DAZN 1 Backup", TvgID: str("dazn1.es"), TvgName: str("DAZN 1")},
		models.Channel{ID: "c", Name: "Protected BBC", EPGUpdateProtected: true, TvgID: str("manual")},
		models.Channel{ID: "d", Name: "Random Show"},
		models.Channel{ID: "e", Name: "DAZN 1 FHD"},
	)
	ms.AddMappings(
		models.PatternMapping{Kind: models.MappingExclude, Pattern: "backup"},
		models.PatternMapping{Kind: models.MappingInclude, Pattern: "dazn 1", EPGChannelID: "dazn1.es"},
	)
	return ms
}

func newReconciler(t *testing.T, ms *testsupport.MemStore) (*Reconciler, *passlock.FileLocker) {
	t.Helper()
	lock, err := passlock.NewFileLocker(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileLocker: %v", err)
	}
	rec := NewReconciler(ms, lock, zap.NewNop(), ReconcilerOptions{UpdateTimeout: time.Second, Concurrency: 3})
	return rec, lock
}

func autoScan() RunRequest {
	return RunRequest{Options: reconcile.Options{AutoScan: true, Threshold: 0.8}}
}

func storeUpdateEnabled(enabled bool) store.EPGSourceUpdate {
	return store.EPGSourceUpdate{Enabled: &enabled}
}
