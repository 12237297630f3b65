package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/reconcile"
	"github.com/voyagen/epgsync/internal/store"
)

const (
	DefaultPreviewLimit = 15
	MaxPreviewLimit     = 200
)

// CreateMapping validates a wire record and stores it. Rejected records
// leave the store untouched.
func (s *Service) CreateMapping(ctx context.Context, rec models.MappingRecord) (*models.PatternMapping, error) {
	m, err := models.ParseMappingRecord(rec)
	if err != nil {
		return nil, err
	}
	m.ID = 0
	if err := checkRule(m); err != nil {
		return nil, err
	}
	if !m.IsExclusion() {
		if err := s.checkEPGChannel(ctx, m.EPGChannelID); err != nil {
			return nil, err
		}
	}
	if err := s.store.CreateMapping(ctx, &m); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("mapping %q: %w", m.Record().SearchPattern, store.ErrConflict)
		}
		return nil, err
	}
	return &m, nil
}

// checkEPGChannel rejects ids absent from a non-empty catalog. With no
// catalog loaded yet there is nothing to check against.
func (s *Service) checkEPGChannel(ctx context.Context, id string) error {
	catalog, err := s.store.ListCatalog(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if len(catalog) == 0 {
		return nil
	}
	for _, e := range catalog {
		if e.ID == id {
			return nil
		}
	}
	return models.ValidationError{Field: "epg_channel_id", Message: fmt.Sprintf("epg channel %q is not in the catalog", id)}
}

func checkRule(m models.PatternMapping) error {
	if err := reconcile.CheckMapping(m); err != nil {
		var re reconcile.RuleError
		if errors.As(err, &re) {
			return models.ValidationError{Field: "search_pattern", Message: re.Err.Error()}
		}
		return err
	}
	return nil
}

// ListMappings returns all mappings in their wire shape.
func (s *Service) ListMappings(ctx context.Context) ([]models.MappingRecord, error) {
	ms, err := s.store.ListMappings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.MappingRecord, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Record())
	}
	return out, nil
}

// PreviewMapping lists the channels a candidate pattern would match. The EPG
// channel id is optional here so that a pattern can be tried before a target
// is chosen. At most limit matches are returned; Total counts all of them.
func (s *Service) PreviewMapping(ctx context.Context, rec models.MappingRecord, limit int) (*reconcile.PreviewResult, error) {
	cand, err := candidateFromRecord(rec)
	if err != nil {
		return nil, err
	}
	channels, err := s.store.AllChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	existing, err := s.store.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	res, err := reconcile.Preview(channels, existing, cand)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	limit = min(limit, MaxPreviewLimit)
	if len(res.Matches) > limit {
		res.Matches = res.Matches[:limit]
	}
	return res, nil
}

func candidateFromRecord(rec models.MappingRecord) (models.PatternMapping, error) {
	if !strings.HasPrefix(strings.TrimSpace(rec.SearchPattern), models.ExclusionPrefix) && strings.TrimSpace(rec.EPGChannelID) == "" {
		rec.EPGChannelID = "preview"
	}
	m, err := models.ParseMappingRecord(rec)
	if err != nil {
		return models.PatternMapping{}, err
	}
	return m, checkRule(m)
}
