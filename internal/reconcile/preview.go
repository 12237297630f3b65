package reconcile

import (
	"sort"

	"github.com/voyagen/epgsync/internal/models"
)

// PreviewMatch is a channel a candidate mapping would currently match.
type PreviewMatch struct {
	ChannelID string  `json:"channel_id"`
	Name      string  `json:"name"`
	TvgID     *string `json:"tvg_id"`
	Protected bool    `json:"protected"`
	HasEPG    bool    `json:"has_epg"`
}

// PreviewResult lists the channels a candidate mapping matches.
// Suppressed counts channels left out because an existing exclusion covers them.
type PreviewResult struct {
	Total      int            `json:"total"`
	Suppressed int            `json:"suppressed"`
	Matches    []PreviewMatch `json:"matches"`
}

// Preview evaluates a candidate mapping against the current channels without
// side effects. For an inclusion candidate, channels already covered by an
// existing exclusion are suppressed, since a pass would exclude them first.
// Existing exclusions that fail to compile are ignored.
func Preview(channels []models.Channel, existing []models.PatternMapping, candidate models.PatternMapping) (*PreviewResult, error) {
	cand, err := compileRule(candidate)
	if err != nil {
		return nil, err
	}
	var excl []rule
	if !candidate.IsExclusion() {
		excl, _, _ = compileRules(existing)
	}

	res := &PreviewResult{Matches: []PreviewMatch{}}
	for _, ch := range channels {
		folded := foldCase(ch.Name)
		if !cand.matches(ch.Name, folded) {
			continue
		}
		if _, ok := anyMatch(excl, ch.Name, folded); ok {
			res.Suppressed++
			continue
		}
		res.Matches = append(res.Matches, PreviewMatch{
			ChannelID: ch.ID,
			Name:      ch.Name,
			TvgID:     ch.TvgID,
			Protected: ch.EPGUpdateProtected,
			HasEPG:    ch.TvgID != nil && ch.TvgName != nil,
		})
	}
	sort.SliceStable(res.Matches, func(i, j int) bool {
		if res.Matches[i].Name != res.Matches[j].Name {
			return res.Matches[i].Name < res.Matches[j].Name
		}
		return res.Matches[i].ChannelID < res.Matches[j].ChannelID
	})
	res.Total = len(res.Matches)
	return res, nil
}
