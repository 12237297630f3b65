package reconcile

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/voyagen/epgsync/internal/models"
)

// Options controls a reconciliation pass.
type Options struct {
	// RespectExisting leaves channels that already carry tvg_id and
	// tvg_name alone unless an exclusion or inclusion pattern matches.
	RespectExisting bool `json:"respect_existing"`
	// CleanUnmatched clears EPG fields of channels no rule matched.
	CleanUnmatched bool `json:"clean_unmatched"`
	// AutoScan enables fuzzy name matching against the catalog.
	AutoScan bool `json:"auto_scan"`
	// Threshold is the minimum similarity accepted by AutoScan.
	Threshold float64 `json:"threshold,omitempty"`
}

// Validate rejects thresholds outside [0,1].
func (o Options) Validate() error {
	if !o.AutoScan {
		return nil
	}
	if math.IsNaN(o.Threshold) || o.Threshold < 0 || o.Threshold > 1 {
		return models.ValidationError{Field: "threshold", Message: fmt.Sprintf("threshold must be within [0,1], got %v", o.Threshold)}
	}
	return nil
}

// Snapshot is the input of a pass: every channel, the catalog of enabled
// sources and all pattern mappings.
type Snapshot struct {
	Channels []models.Channel
	Catalog  []models.CatalogEntry
	Mappings []models.PatternMapping
}

// Action is the per-channel outcome.
type Action string

const (
	ActionUnchanged Action = "unchanged"
	ActionCleaned   Action = "cleaned"
	ActionExcluded  Action = "excluded"
	ActionMatched   Action = "matched"
)

// Reason names the rule that decided a channel.
type Reason string

const (
	ReasonProtected Reason = "protected"
	ReasonExclusion Reason = "exclusion"
	ReasonPattern   Reason = "pattern"
	ReasonExisting  Reason = "existing"
	ReasonFuzzy     Reason = "fuzzy"
	ReasonUnmatched Reason = "unmatched"
)

// Decision is the outcome for one channel. Fields holds the EPG values the
// channel should carry after the pass; Changed is true when they differ from
// the current ones.
type Decision struct {
	ChannelID    string           `json:"channel_id"`
	Name         string           `json:"name"`
	Action       Action           `json:"action"`
	Reason       Reason           `json:"reason"`
	EPGChannelID string           `json:"epg_channel_id,omitempty"`
	Rule         string           `json:"rule,omitempty"`
	Score        float64          `json:"score,omitempty"`
	Degraded     bool             `json:"degraded,omitempty"`
	Fields       models.EPGFields `json:"fields"`
	Changed      bool             `json:"changed"`
}

// Stats aggregates a pass. Updated, Matched and Cleaned count effective
// changes only.
type Stats struct {
	Total    int `json:"total"`
	Updated  int `json:"updated"`
	Cleaned  int `json:"cleaned"`
	Locked   int `json:"locked"`
	Excluded int `json:"excluded"`
	Matched  int `json:"matched"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

func (s *Stats) add(d Decision) {
	s.Total++
	switch d.Reason {
	case ReasonProtected:
		s.Locked++
	case ReasonExclusion:
		s.Excluded++
	case ReasonExisting:
		s.Skipped++
	}
	if !d.Changed {
		return
	}
	s.Updated++
	switch d.Action {
	case ActionMatched:
		s.Matched++
	case ActionCleaned:
		s.Cleaned++
	}
}

// Revert takes back the counters of a decision whose write failed.
func (s *Stats) Revert(d Decision) {
	s.Errors++
	s.undoChange(d)
}

// Lock recounts a decision as locked. It is used when a channel became
// protected between the snapshot and its write.
func (s *Stats) Lock(d Decision) {
	s.undoChange(d)
	switch d.Reason {
	case ReasonExclusion:
		s.Excluded--
	case ReasonExisting:
		s.Skipped--
	}
	s.Locked++
}

func (s *Stats) undoChange(d Decision) {
	if !d.Changed {
		return
	}
	s.Updated--
	switch d.Action {
	case ActionMatched:
		s.Matched--
	case ActionCleaned:
		s.Cleaned--
	}
}

// Locked rewrites d as left alone because the channel is protected;
// current is what the channel carries now.
func (d Decision) Locked(current models.EPGFields) Decision {
	return Decision{ChannelID: d.ChannelID, Name: d.Name, Action: ActionUnchanged, Reason: ReasonProtected, Fields: current.Normalize()}
}

// Result is the outcome of Evaluate.
type Result struct {
	Decisions  []Decision
	Stats      Stats
	RuleErrors []RuleError
}

// Changes returns the decisions that require a write.
func (r *Result) Changes() []Decision {
	var out []Decision
	for _, d := range r.Decisions {
		if d.Changed {
			out = append(out, d)
		}
	}
	return out
}

// Evaluate runs the reconciliation policy over a snapshot. It performs no
// I/O; decisions are ordered by channel id so identical inputs always yield
// identical output.
func Evaluate(snap Snapshot, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	excl, incl, ruleErrs := compileRules(snap.Mappings)
	cat := newCatalogIndex(snap.Catalog)

	channels := append([]models.Channel(nil), snap.Channels...)
	sort.SliceStable(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	res := &Result{Decisions: make([]Decision, 0, len(channels)), RuleErrors: ruleErrs}
	for i := range channels {
		d := decide(&channels[i], excl, incl, cat, opts)
		res.Stats.add(d)
		res.Decisions = append(res.Decisions, d)
	}
	return res, nil
}

func decide(ch *models.Channel, excl, incl []rule, cat *catalogIndex, opts Options) Decision {
	before := ch.EPG().Normalize()
	d := Decision{ChannelID: ch.ID, Name: ch.Name, Action: ActionUnchanged, Fields: before}

	if ch.EPGUpdateProtected {
		d.Reason = ReasonProtected
		return d
	}

	folded := foldCase(ch.Name)

	if r, ok := anyMatch(excl, ch.Name, folded); ok {
		d.Reason = ReasonExclusion
		d.Action = ActionExcluded
		d.Rule = r.mapping.Record().SearchPattern
		d.Fields = models.EPGFields{}
		d.Changed = !before.Empty()
		return d
	}

	if r, ok := bestInclusion(incl, ch.Name, folded); ok {
		d.Reason = ReasonPattern
		d.Action = ActionMatched
		d.Rule = r.mapping.Record().SearchPattern
		d.EPGChannelID = r.mapping.EPGChannelID
		entry, found := cat.byID[r.mapping.EPGChannelID]
		if found {
			d.Fields = assign(before, r.mapping.EPGChannelID, &entry)
		} else {
			d.Degraded = true
			d.Fields = assign(before, r.mapping.EPGChannelID, nil)
		}
		d.Changed = !before.Equal(d.Fields)
		return d
	}

	if opts.RespectExisting && before.TvgID != nil && before.TvgName != nil {
		d.Reason = ReasonExisting
		return d
	}

	if opts.AutoScan {
		if entry, score, ok := cat.best(ch.Name); ok && score >= opts.Threshold {
			d.Reason = ReasonFuzzy
			d.Action = ActionMatched
			d.EPGChannelID = entry.ID
			d.Score = score
			d.Fields = assign(before, entry.ID, &entry)
			d.Changed = !before.Equal(d.Fields)
			return d
		}
	}

	d.Reason = ReasonUnmatched
	if opts.CleanUnmatched {
		d.Action = ActionCleaned
		d.Fields = models.EPGFields{}
		d.Changed = !before.Empty()
		if !d.Changed {
			d.Action = ActionUnchanged
		}
	}
	return d
}

// assign points the fields at an EPG channel. Catalog name and icon are
// copied when present; without a catalog entry only tvg_id changes.
func assign(before models.EPGFields, epgID string, entry *models.CatalogEntry) models.EPGFields {
	out := before
	out.TvgID = models.StrPtr(epgID)
	if entry != nil {
		if name := strings.TrimSpace(entry.Name); name != "" {
			out.TvgName = &name
		}
		if icon := strings.TrimSpace(entry.Icon); icon != "" {
			out.Logo = &icon
		}
	}
	return out.Normalize()
}
