package store

import (
	"context"

	"github.com/voyagen/epgsync/internal/models"
)

func (p *Postgres) ListMappings(ctx context.Context) ([]models.PatternMapping, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, kind, pattern, epg_channel_id, is_regex FROM epg_pattern_mappings ORDER BY id`)
	if err != nil {
		return nil, wrapErr("ListMappings", err)
	}
	defer rows.Close()
	var out []models.PatternMapping
	for rows.Next() {
		var m models.PatternMapping
		if err := rows.Scan(&m.ID, &m.Kind, &m.Pattern, &m.EPGChannelID, &m.Regex); err != nil {
			return nil, wrapErr("ListMappings scan", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateMapping(ctx context.Context, m *models.PatternMapping) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO epg_pattern_mappings (kind, pattern, epg_channel_id, is_regex)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		string(m.Kind), m.Pattern, m.EPGChannelID, m.Regex,
	).Scan(&m.ID)
	if err != nil {
		return wrapErr("CreateMapping", err)
	}
	return nil
}

func (p *Postgres) DeleteMapping(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM epg_pattern_mappings WHERE id = $1`, id)
	return expectOne("DeleteMapping", tag, err)
}
