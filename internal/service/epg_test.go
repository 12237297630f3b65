package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/store"
	"github.com/voyagen/epgsync/internal/testsupport"
)

const guideXML = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="espn.us"><display-name lang="en">ESPN</display-name><icon src="http://logo/espn.png"/></channel>
  <channel id="espn2.us"><display-name lang="en">ESPN 2</display-name></channel>
</tv>`

func guideServer(t *testing.T, disabledHits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.xml":
			_, _ = w.Write([]byte(guideXML))
		case "/disabled.xml":
			disabledHits.Add(1)
			_, _ = w.Write([]byte(guideXML))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRefreshCatalog(t *testing.T) {
	var disabledHits atomic.Int32
	srv := guideServer(t, &disabledHits)

	ms := testsupport.NewMemStore()
	okID := ms.AddSource(models.EPGSource{URL: srv.URL + "/ok.xml", Enabled: true})
	badID := ms.AddSource(models.EPGSource{URL: srv.URL + "/fail.xml", Enabled: true},
		models.CatalogEntry{ID: "old", Name: "Old Channel"})
	ms.AddSource(models.EPGSource{URL: srv.URL + "/disabled.xml", Enabled: false})

	svc := New(ms, zap.NewNop(), Options{UserAgent: "test"})
	results, err := svc.RefreshCatalog(context.Background())
	if err != nil {
		t.Fatalf("RefreshCatalog returned error: %v", err)
	}
	if len(results) != 2 || results[0].SourceID != okID || results[1].SourceID != badID {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Channels != 2 || results[0].Error != "" {
		t.Fatalf("unexpected ok result: %+v", results[0])
	}
	if results[1].Error == "" {
		t.Fatalf("expected failure for bad source: %+v", results[1])
	}
	if disabledHits.Load() != 0 {
		t.Fatal("disabled source was fetched")
	}

	ok, _ := ms.GetEPGSource(context.Background(), okID)
	if ok.LastUpdated == nil || ok.ErrorCount != 0 || ok.LastError != nil {
		t.Fatalf("success not recorded: %+v", ok)
	}
	bad, _ := ms.GetEPGSource(context.Background(), badID)
	if bad.ErrorCount != 1 || bad.LastError == nil {
		t.Fatalf("failure not recorded: %+v", bad)
	}

	catalog, _ := ms.ListCatalog(context.Background())
	ids := map[string]bool{}
	for _, e := range catalog {
		ids[e.ID] = true
		if e.ID == "espn.us" && len(e.NameVector) == 0 {
			t.Fatal("refreshed entries should carry a name fingerprint")
		}
	}
	if !ids["espn.us"] || !ids["espn2.us"] || !ids["old"] {
		t.Fatalf("unexpected catalog after refresh: %v", ids)
	}
}

func TestCreateEPGSourceValidation(t *testing.T) {
	svc := New(testsupport.NewMemStore(), zap.NewNop(), Options{})
	src := &models.EPGSource{URL: " https://guide.example.com/epg.xml.gz ", Enabled: true}
	if err := svc.CreateEPGSource(context.Background(), src); err != nil {
		t.Fatalf("CreateEPGSource returned error: %v", err)
	}
	if src.ID == 0 || src.Name != "guide.example.com" {
		t.Fatalf("unexpected stored source: %+v", src)
	}
	dup := &models.EPGSource{URL: "https://guide.example.com/epg.xml.gz"}
	if err := svc.CreateEPGSource(context.Background(), dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var verr models.ValidationError
	if err := svc.CreateEPGSource(context.Background(), &models.EPGSource{URL: "ftp://x/y"}); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSuggestEPG(t *testing.T) {
	svc := New(seedStore(), zap.NewNop(), Options{})
	got, err := svc.SuggestEPG(context.Background(), "ESPN FHD (backup)", 2)
	if err != nil {
		t.Fatalf("SuggestEPG returned error: %v", err)
	}
	if len(got) == 0 || got[0].Entry.ID != "espn.us" || got[0].Score != 1 {
		t.Fatalf("unexpected suggestions: %+v", got)
	}
	if len(got) > 2 {
		t.Fatalf("limit not applied: %d", len(got))
	}
	empty, err := svc.SuggestEPG(context.Background(), "  ", 5)
	if err != nil || len(empty) != 0 {
		t.Fatalf("blank name should yield no suggestions: %v %v", empty, err)
	}
}
