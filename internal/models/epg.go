package models

import "time"

// EPGSource is an XMLTV guide URL. Disabled sources are skipped on refresh
// and their channels are hidden from the catalog.
type EPGSource struct {
	ID          int64      `json:"id"`
	URL         string     `json:"url"`
	Name        string     `json:"name,omitempty"`
	Enabled     bool       `json:"enabled"`
	LastUpdated *time.Time `json:"last_updated"`
	ErrorCount  int        `json:"error_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// CatalogEntry is one <channel> parsed from an EPG source.
// IDs are unique within a source but may repeat across sources.
type CatalogEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Language string `json:"language,omitempty"`
	SourceID int64  `json:"source_id"`

	// SourceUpdated is the owning source's last successful refresh.
	SourceUpdated *time.Time `json:"source_updated,omitempty"`

	// NameVector is the name fingerprint persisted for similarity lookups.
	NameVector []float32 `json:"-"`
}
