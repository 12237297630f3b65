package service

import (
	"cmp"
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voyagen/epgsync/internal/fetcher"
	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/reconcile"
	"github.com/voyagen/epgsync/internal/store"
)

// SourceResult is the outcome of refreshing one EPG source.
type SourceResult struct {
	SourceID int64  `json:"source_id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Channels int    `json:"channels"`
	Error    string `json:"error,omitempty"`
}

// CreateEPGSource validates and stores a new source. The name defaults to
// the URL host.
func (s *Service) CreateEPGSource(ctx context.Context, src *models.EPGSource) error {
	src.URL = strings.TrimSpace(src.URL)
	host, err := validateURL(src.URL)
	if err != nil {
		return err
	}
	src.Name = strings.TrimSpace(src.Name)
	if src.Name == "" {
		src.Name = host
	}
	return s.store.CreateEPGSource(ctx, src)
}

// UpdateEPGSource validates changed fields and applies them.
func (s *Service) UpdateEPGSource(ctx context.Context, id int64, fields store.EPGSourceUpdate) (*models.EPGSource, error) {
	if fields.URL != nil {
		u := strings.TrimSpace(*fields.URL)
		if _, err := validateURL(u); err != nil {
			return nil, err
		}
		fields.URL = &u
	}
	if err := s.store.UpdateEPGSource(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.store.GetEPGSource(ctx, id)
}

func validateURL(raw string) (string, error) {
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", models.ValidationError{Field: "url", Message: "an absolute http(s) url is required"}
	}
	return u.Hostname(), nil
}

// RefreshCatalog downloads every enabled source in parallel and replaces its
// catalog entries. A failing source keeps its previous entries and has its
// error recorded; the other sources are unaffected.
func (s *Service) RefreshCatalog(ctx context.Context) ([]SourceResult, error) {
	sources, err := s.store.ListEPGSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	var (
		mu      sync.Mutex
		results []SourceResult
		g       errgroup.Group
	)
	g.SetLimit(s.opts.RefreshConcurrency)
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		g.Go(func() error {
			res := s.refreshSource(ctx, src)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	slices.SortFunc(results, func(a, b SourceResult) int { return cmp.Compare(a.SourceID, b.SourceID) })
	return results, nil
}

// RefreshSource refreshes a single source regardless of its enabled flag.
func (s *Service) RefreshSource(ctx context.Context, id int64) (*SourceResult, error) {
	src, err := s.store.GetEPGSource(ctx, id)
	if err != nil {
		return nil, err
	}
	res := s.refreshSource(ctx, *src)
	return &res, nil
}

func (s *Service) refreshSource(ctx context.Context, src models.EPGSource) SourceResult {
	res := SourceResult{SourceID: src.ID, Name: src.Name, URL: src.URL}
	log := s.logger.With(zap.Int64("source_id", src.ID), zap.String("url", src.URL))

	entries, err := fetcher.FetchXMLTV(ctx, src.URL, s.opts.UserAgent, s.opts.FetchTimeout)
	if err == nil {
		for i := range entries {
			entries[i].SourceID = src.ID
			entries[i].NameVector = reconcile.Fingerprint(entries[i].Name)
		}
		err = s.store.ReplaceCatalog(ctx, src.ID, entries)
	}
	if recErr := s.store.RecordEPGFetch(ctx, src.ID, err); recErr != nil {
		log.Warn("record fetch outcome failed", zap.Error(recErr))
	}
	if err != nil {
		log.Warn("epg source refresh failed", zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.Channels = len(entries)
	log.Info("epg source refreshed", zap.Int("channels", len(entries)))
	return res
}
