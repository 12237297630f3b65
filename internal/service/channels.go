package service

import (
	"context"
	"strings"

	"github.com/voyagen/epgsync/internal/fetcher"
	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/store"
)

// CreateChannel adds a channel by hand. The id is derived from the URL when
// omitted.
func (s *Service) CreateChannel(ctx context.Context, ch *models.Channel) error {
	ch.Name = strings.TrimSpace(ch.Name)
	ch.URL = strings.TrimSpace(ch.URL)
	ch.ID = strings.TrimSpace(ch.ID)
	if ch.Name == "" {
		return models.ValidationError{Field: "name", Message: "name is required"}
	}
	if ch.ID == "" {
		if ch.URL == "" {
			return models.ValidationError{Field: "url", Message: "url or id is required"}
		}
		ch.ID = fetcher.ChannelID(ch.URL)
	}
	ch.Group = models.StrPtr(models.StrVal(ch.Group))
	ch.SetEPG(ch.EPG())
	return s.store.CreateChannel(ctx, ch)
}

// UpdateChannel edits name, url or group.
func (s *Service) UpdateChannel(ctx context.Context, id string, fields store.ChannelUpdate) (*models.Channel, error) {
	if fields.Name != nil {
		n := strings.TrimSpace(*fields.Name)
		if n == "" {
			return nil, models.ValidationError{Field: "name", Message: "name cannot be empty"}
		}
		fields.Name = &n
	}
	if err := s.store.UpdateChannel(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.store.GetChannel(ctx, id)
}

// SetChannelEPG is the manual EPG edit. It applies to protected channels
// too: protection only shields a channel from passes.
func (s *Service) SetChannelEPG(ctx context.Context, id string, fields models.EPGFields) (*models.Channel, error) {
	if err := s.store.SetChannelEPG(ctx, id, fields.Normalize()); err != nil {
		return nil, err
	}
	return s.store.GetChannel(ctx, id)
}

func (s *Service) SetChannelProtection(ctx context.Context, id string, protected bool) (*models.Channel, error) {
	if err := s.store.SetChannelProtection(ctx, id, protected); err != nil {
		return nil, err
	}
	return s.store.GetChannel(ctx, id)
}
