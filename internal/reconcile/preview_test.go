package reconcile

import (
	"errors"
	"testing"

	"github.com/voyagen/epgsync/internal/models"
)

func previewChannels() []models.Channel {
	return []models.Channel{
		{ID: "1", Name: "DAZN 1 HD", TvgID: str("dazn1"), TvgName: str("DAZN 1")},
		{ID: "2", Name: "DAZN 2 Backup"},
		{ID: "3", Name: "dazn f1", EPGUpdateProtected: true},
		{ID: "4", Name: "ESPN"},
		{ID: "5", Name: ""},
	}
}

func TestPreviewSuppressesExcludedChannels(t *testing.T) {
	existing := []models.PatternMapping{exclude(1, "backup")}
	res, err := Preview(previewChannels(), existing, include(0, "dazn", "dazn.es"))
	if err != nil {
		t.Fatalf("Preview returned error: %v", err)
	}
	if res.Total != 2 || res.Suppressed != 1 {
		t.Fatalf("unexpected counts: total=%d suppressed=%d", res.Total, res.Suppressed)
	}
	if res.Matches[0].ChannelID != "1" || !res.Matches[0].HasEPG {
		t.Fatalf("unexpected first match: %+v", res.Matches[0])
	}
	if res.Matches[1].ChannelID != "3" || !res.Matches[1].Protected {
		t.Fatalf("unexpected second match: %+v", res.Matches[1])
	}
}

func TestPreviewExclusionCandidateIgnoresExistingExclusions(t *testing.T) {
	existing := []models.PatternMapping{exclude(1, "backup")}
	res, err := Preview(previewChannels(), existing, exclude(0, "DAZN"))
	if err != nil {
		t.Fatalf("Preview returned error: %v", err)
	}
	if res.Total != 3 || res.Suppressed != 0 {
		t.Fatalf("unexpected counts: total=%d suppressed=%d", res.Total, res.Suppressed)
	}
}

func TestPreviewRejectsBadRegex(t *testing.T) {
	cand := models.PatternMapping{Kind: models.MappingExclude, Pattern: "[", Regex: true}
	if _, err := Preview(previewChannels(), nil, cand); err == nil {
		t.Fatal("expected error for malformed regex")
	}
}

func TestPreviewAgreesWithEvaluate(t *testing.T) {
	channels := previewChannels()
	existing := []models.PatternMapping{exclude(1, "backup")}
	cand := include(2, "dazn", "dazn.es")

	res, err := Preview(channels, existing, cand)
	if err != nil {
		t.Fatalf("Preview returned error: %v", err)
	}
	pass := mustEvaluate(t, Snapshot{Channels: channels, Mappings: append(existing, cand)}, Options{})
	for _, m := range res.Matches {
		d := decisionFor(t, pass, m.ChannelID)
		if m.Protected {
			if d.Reason != ReasonProtected {
				t.Fatalf("expected protected decision for %s, got %+v", m.ChannelID, d)
			}
			continue
		}
		if d.Reason != ReasonPattern {
			t.Fatalf("previewed channel %s not matched by the pass: %+v", m.ChannelID, d)
		}
	}
}

func TestCheckMapping(t *testing.T) {
	if err := CheckMapping(include(1, "dazn", "dazn.es")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := models.PatternMapping{ID: 4, Kind: models.MappingInclude, Pattern: "(", EPGChannelID: "x", Regex: true}
	var ruleErr RuleError
	if err := CheckMapping(bad); !errors.As(err, &ruleErr) || ruleErr.MappingID != 4 {
		t.Fatalf("expected RuleError for mapping 4, got %v", err)
	}
}
