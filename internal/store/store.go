package store

import (
	"context"
	"errors"

	"github.com/voyagen/epgsync/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
	// ErrProtected is returned by ApplyChannelEPG when the channel is
	// protected from automated EPG updates.
	ErrProtected = errors.New("channel is protected")
)

// Store defines persistence for channels, EPG sources, the EPG catalog and
// pattern mappings.
type Store interface {
	// ListChannels returns channels matching the filter and the total count before limit/offset.
	ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error)
	// AllChannels returns every channel, ordered by id.
	AllChannels(ctx context.Context) ([]models.Channel, error)
	GetChannel(ctx context.Context, id string) (*models.Channel, error)
	// CreateChannel inserts a new channel; ErrConflict if the id exists.
	CreateChannel(ctx context.Context, ch *models.Channel) error
	// UpsertChannel inserts a channel or refreshes name, url and group of an
	// existing one. EPG fields of existing channels are left untouched.
	UpsertChannel(ctx context.Context, ch *models.Channel) (created bool, err error)
	UpdateChannel(ctx context.Context, id string, fields ChannelUpdate) error
	// SetChannelEPG overwrites tvg_id, tvg_name and logo, protected or not.
	SetChannelEPG(ctx context.Context, id string, fields models.EPGFields) error
	// ApplyChannelEPG is the automated form of SetChannelEPG: the write only
	// lands while epg_update_protected is false, otherwise ErrProtected.
	ApplyChannelEPG(ctx context.Context, id string, fields models.EPGFields) error
	SetChannelProtection(ctx context.Context, id string, protected bool) error
	DeleteChannel(ctx context.Context, id string) error

	ListEPGSources(ctx context.Context) ([]models.EPGSource, error)
	GetEPGSource(ctx context.Context, id int64) (*models.EPGSource, error)
	// CreateEPGSource inserts src and sets its ID; ErrConflict on a duplicate URL.
	CreateEPGSource(ctx context.Context, src *models.EPGSource) error
	UpdateEPGSource(ctx context.Context, id int64, fields EPGSourceUpdate) error
	// DeleteEPGSource removes the source and its catalog entries.
	DeleteEPGSource(ctx context.Context, id int64) error
	// RecordEPGFetch stores the outcome of a refresh: on success last_updated
	// is set and the error state reset, otherwise error_count is incremented.
	RecordEPGFetch(ctx context.Context, id int64, fetchErr error) error

	// ReplaceCatalog swaps every catalog entry of a source in one transaction.
	ReplaceCatalog(ctx context.Context, sourceID int64, entries []models.CatalogEntry) error
	// ListCatalog returns the catalog of enabled sources, with SourceUpdated set.
	ListCatalog(ctx context.Context) ([]models.CatalogEntry, error)
	// SearchCatalog pages through the catalog of enabled sources.
	SearchCatalog(ctx context.Context, filter CatalogFilter) ([]models.CatalogEntry, int, error)
	// NearestCatalog returns up to limit entries whose name vector is closest to vec.
	NearestCatalog(ctx context.Context, vec []float32, limit int) ([]models.CatalogEntry, error)

	ListMappings(ctx context.Context) ([]models.PatternMapping, error)
	// CreateMapping inserts m and sets its ID; ErrConflict on a duplicate pattern.
	CreateMapping(ctx context.Context, m *models.PatternMapping) error
	DeleteMapping(ctx context.Context, id int64) error
}

// ChannelFilter holds optional filters for listing channels.
type ChannelFilter struct {
	Search    string // case-insensitive substring match on name
	Group     *string
	HasEPG    *bool
	Protected *bool
	Limit     int // default 50, max 200
	Offset    int
}

// CatalogFilter holds optional filters for listing catalog entries.
type CatalogFilter struct {
	Search   string // matches id or name
	SourceID *int64
	Limit    int
	Offset   int
}

// ChannelUpdate holds mutable channel fields. nil means unchanged.
type ChannelUpdate struct {
	Name  *string
	URL   *string
	Group *string
}

// EPGSourceUpdate holds mutable source fields. nil means unchanged.
type EPGSourceUpdate struct {
	Name    *string
	URL     *string
	Enabled *bool
}

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*CachedStore)(nil)
)
