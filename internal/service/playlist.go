package service

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/voyagen/epgsync/internal/fetcher"
	"github.com/voyagen/epgsync/internal/models"
)

// ImportResult summarizes a playlist import.
type ImportResult struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// ImportPlaylist fetches an M3U URL and upserts its channels. New channels
// take the playlist's tvg attributes; existing channels keep their EPG data
// and protection flag. group, when set, overrides group-title.
func (s *Service) ImportPlaylist(ctx context.Context, m3uURL, group string) (*ImportResult, error) {
	m3uURL = strings.TrimSpace(m3uURL)
	if _, err := validateURL(m3uURL); err != nil {
		return nil, err
	}
	channels, err := fetcher.FetchM3U(ctx, m3uURL, s.opts.UserAgent, s.opts.FetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	res := &ImportResult{}
	for i := range channels {
		// long imports stop early on shutdown
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("import cancelled: %w", err)
		}
		ch := &channels[i]
		if g := strings.TrimSpace(group); g != "" {
			ch.Group = &g
		}
		created, err := s.store.UpsertChannel(ctx, ch)
		if err != nil {
			return res, fmt.Errorf("UpsertChannel %s: %w", ch.ID, err)
		}
		res.Total++
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	s.logger.Info("playlist imported", zap.String("url", m3uURL),
		zap.Int("total", res.Total), zap.Int("created", res.Created), zap.Int("updated", res.Updated))
	return res, nil
}

// ExportPlaylist writes every channel as an M3U playlist ordered by group
// and name.
func (s *Service) ExportPlaylist(ctx context.Context, w io.Writer) error {
	channels, err := s.store.AllChannels(ctx)
	if err != nil {
		return fmt.Errorf("load channels: %w", err)
	}
	slices.SortStableFunc(channels, func(a, b models.Channel) int {
		return cmp.Or(
			cmp.Compare(models.StrVal(a.Group), models.StrVal(b.Group)),
			cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return fetcher.WriteM3U(w, channels)
}
