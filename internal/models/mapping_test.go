package models

import (
	"errors"
	"testing"
)

func TestParseMappingRecordExclusionPrefix(t *testing.T) {
	m, err := ParseMappingRecord(MappingRecord{SearchPattern: " !ESPN ", EPGChannelID: ""})
	if err != nil {
		t.Fatalf("ParseMappingRecord returned error: %v", err)
	}
	if !m.IsExclusion() {
		t.Fatalf("expected exclusion, got %+v", m)
	}
	if m.Pattern != "ESPN" {
		t.Fatalf("unexpected pattern: %q", m.Pattern)
	}
	rec := m.Record()
	if rec.SearchPattern != "!ESPN" || rec.EPGChannelID != "" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestParseMappingRecordInclusion(t *testing.T) {
	m, err := ParseMappingRecord(MappingRecord{SearchPattern: "DAZN 1", EPGChannelID: "dazn1.es"})
	if err != nil {
		t.Fatalf("ParseMappingRecord returned error: %v", err)
	}
	if m.Kind != MappingInclude || m.EPGChannelID != "dazn1.es" {
		t.Fatalf("unexpected mapping: %+v", m)
	}
	if m.Key() != "dazn 1" {
		t.Fatalf("unexpected key: %q", m.Key())
	}
}

func TestParseMappingRecordValidation(t *testing.T) {
	tests := []struct {
		name  string
		rec   MappingRecord
		field string
	}{
		{name: "empty", rec: MappingRecord{SearchPattern: "  "}, field: "search_pattern"},
		{name: "bare exclusion", rec: MappingRecord{SearchPattern: "!"}, field: "search_pattern"},
		{name: "missing epg id", rec: MappingRecord{SearchPattern: "ESPN"}, field: "epg_channel_id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMappingRecord(tc.rec)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("unexpected field: got %q want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestExclusionIgnoresEPGChannelID(t *testing.T) {
	m, err := ParseMappingRecord(MappingRecord{SearchPattern: "!test", EPGChannelID: "leftover"})
	if err != nil {
		t.Fatalf("ParseMappingRecord returned error: %v", err)
	}
	if m.EPGChannelID != "" {
		t.Fatalf("expected epg id dropped for exclusion, got %q", m.EPGChannelID)
	}
}

func TestEPGFieldsEqualTreatsBlankAsNil(t *testing.T) {
	blank := ""
	a := EPGFields{TvgID: &blank}
	if !a.Equal(EPGFields{}) {
		t.Fatal("expected blank and nil to compare equal")
	}
	if !a.Empty() {
		t.Fatal("expected blank fields to be empty")
	}
	b := EPGFields{TvgID: StrPtr("x")}
	if b.Equal(EPGFields{}) {
		t.Fatal("expected populated fields to differ from empty")
	}
}
