package models

import (
	"fmt"
	"strings"
)

// MappingKind distinguishes exclusion rules from inclusion rules.
type MappingKind string

const (
	MappingInclude MappingKind = "include"
	MappingExclude MappingKind = "exclude"
)

// ExclusionPrefix marks an exclusion rule in the wire representation.
const ExclusionPrefix = "!"

// PatternMapping maps channels whose name contains Pattern to an EPG channel,
// or, for exclusions, keeps them away from any EPG assignment.
type PatternMapping struct {
	ID           int64       `json:"id,omitempty"`
	Kind         MappingKind `json:"kind"`
	Pattern      string      `json:"pattern"`
	EPGChannelID string      `json:"epg_channel_id,omitempty"` // empty for exclusions
	Regex        bool        `json:"regex,omitempty"`
}

// MappingRecord is the wire shape of a mapping. An exclusion is encoded by a
// leading "!" in SearchPattern and an empty EPGChannelID.
type MappingRecord struct {
	ID            int64  `json:"id,omitempty"`
	SearchPattern string `json:"search_pattern"`
	EPGChannelID  string `json:"epg_channel_id"`
	Regex         bool   `json:"regex,omitempty"`
}

// IsExclusion reports whether the mapping is an exclusion rule.
func (m PatternMapping) IsExclusion() bool {
	return m.Kind == MappingExclude
}

// Key is the canonical pattern string used for uniqueness checks.
func (m PatternMapping) Key() string {
	return strings.ToLower(m.Record().SearchPattern)
}

// Record converts the mapping to its wire shape.
func (m PatternMapping) Record() MappingRecord {
	r := MappingRecord{ID: m.ID, SearchPattern: m.Pattern, EPGChannelID: m.EPGChannelID, Regex: m.Regex}
	if m.IsExclusion() {
		r.SearchPattern = ExclusionPrefix + m.Pattern
		r.EPGChannelID = ""
	}
	return r
}

// ParseMappingRecord converts a wire record into a validated mapping.
func ParseMappingRecord(r MappingRecord) (PatternMapping, error) {
	raw := strings.TrimSpace(r.SearchPattern)
	m := PatternMapping{ID: r.ID, Kind: MappingInclude, Regex: r.Regex}
	if strings.HasPrefix(raw, ExclusionPrefix) {
		m.Kind = MappingExclude
		raw = strings.TrimSpace(strings.TrimPrefix(raw, ExclusionPrefix))
	}
	m.Pattern = raw
	if !m.IsExclusion() {
		m.EPGChannelID = strings.TrimSpace(r.EPGChannelID)
	}
	if err := m.Validate(); err != nil {
		return PatternMapping{}, err
	}
	return m, nil
}

// Validate checks the structural invariants of a single mapping.
func (m PatternMapping) Validate() error {
	switch m.Kind {
	case MappingInclude, MappingExclude:
	default:
		return ValidationError{Field: "kind", Message: fmt.Sprintf("unknown mapping kind %q", m.Kind)}
	}
	if strings.TrimSpace(m.Pattern) == "" {
		return ValidationError{Field: "search_pattern", Message: "search pattern is required"}
	}
	if m.Kind == MappingInclude && strings.TrimSpace(m.EPGChannelID) == "" {
		return ValidationError{Field: "epg_channel_id", Message: "epg channel id is required for non-exclusion mappings"}
	}
	if m.Kind == MappingExclude && m.EPGChannelID != "" {
		return ValidationError{Field: "epg_channel_id", Message: "exclusion mappings cannot target an epg channel"}
	}
	return nil
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
