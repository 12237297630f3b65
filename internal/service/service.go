// Package service implements the EPG workflows on top of a store: catalog
// refresh, pattern mappings, suggestions, playlist import/export and
// reconciliation passes.
package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/voyagen/epgsync/internal/logging"
	"github.com/voyagen/epgsync/internal/store"
)

// Options configures outbound fetches.
type Options struct {
	UserAgent    string
	FetchTimeout time.Duration
	// RefreshConcurrency bounds parallel EPG source downloads.
	RefreshConcurrency int
}

// Service groups the store-backed operations that are not a pass.
type Service struct {
	store  store.Store
	logger *zap.Logger
	opts   Options
}

func New(s store.Store, logger *zap.Logger, opts Options) *Service {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 60 * time.Second
	}
	if opts.RefreshConcurrency < 1 {
		opts.RefreshConcurrency = 4
	}
	return &Service{store: s, logger: logging.Component(logger, "service"), opts: opts}
}

// Store exposes the underlying store for plain reads.
func (s *Service) Store() store.Store {
	return s.store
}
