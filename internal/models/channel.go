package models

import (
	"strings"
	"time"
)

// Channel represents a single stream entry (name, url, group) plus the EPG
// metadata linking it to a guide channel.
type Channel struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	URL                string     `json:"url,omitempty"`
	Group              *string    `json:"group,omitempty"`
	TvgID              *string    `json:"tvg_id"`
	TvgName            *string    `json:"tvg_name"`
	Logo               *string    `json:"logo"`
	EPGUpdateProtected bool       `json:"epg_update_protected"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// EPGFields is the EPG-derived part of a channel. A nil or empty value means
// the field is absent.
type EPGFields struct {
	TvgID   *string `json:"tvg_id"`
	TvgName *string `json:"tvg_name"`
	Logo    *string `json:"logo"`
}

// EPG returns the channel's current EPG fields.
func (c *Channel) EPG() EPGFields {
	return EPGFields{TvgID: c.TvgID, TvgName: c.TvgName, Logo: c.Logo}
}

// SetEPG replaces the channel's EPG fields, normalizing empty strings to nil.
func (c *Channel) SetEPG(f EPGFields) {
	f = f.Normalize()
	c.TvgID, c.TvgName, c.Logo = f.TvgID, f.TvgName, f.Logo
}

// HasEPG reports whether any EPG field is set.
func (c *Channel) HasEPG() bool {
	return !c.EPG().Empty()
}

// Normalize maps blank values to nil so that "" and null compare equal.
func (f EPGFields) Normalize() EPGFields {
	return EPGFields{TvgID: nonBlank(f.TvgID), TvgName: nonBlank(f.TvgName), Logo: nonBlank(f.Logo)}
}

// Empty reports whether no field carries a value.
func (f EPGFields) Empty() bool {
	n := f.Normalize()
	return n.TvgID == nil && n.TvgName == nil && n.Logo == nil
}

// Equal compares two field sets after normalization.
func (f EPGFields) Equal(o EPGFields) bool {
	a, b := f.Normalize(), o.Normalize()
	return eqPtr(a.TvgID, b.TvgID) && eqPtr(a.TvgName, b.TvgName) && eqPtr(a.Logo, b.Logo)
}

// StrPtr returns a pointer to s, or nil when s is blank.
func StrPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// StrVal dereferences p, returning "" for nil.
func StrVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nonBlank(p *string) *string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil
	}
	v := *p
	return &v
}

func eqPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
