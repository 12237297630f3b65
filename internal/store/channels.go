package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/voyagen/epgsync/internal/models"
)

const channelColumns = `id, name, url, group_title, tvg_id, tvg_name, logo, epg_update_protected, created_at, updated_at`

func scanChannel(row pgx.Row) (models.Channel, error) {
	var ch models.Channel
	err := row.Scan(&ch.ID, &ch.Name, &ch.URL, &ch.Group, &ch.TvgID, &ch.TvgName, &ch.Logo,
		&ch.EPGUpdateProtected, &ch.CreatedAt, &ch.UpdatedAt)
	return ch, err
}

func collectChannels(rows pgx.Rows) ([]models.Channel, error) {
	defer rows.Close()
	var out []models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

const hasEPGCondition = `(btrim(coalesce(tvg_id, '')) <> '' OR btrim(coalesce(tvg_name, '')) <> '' OR btrim(coalesce(logo, '')) <> '')`

func (p *Postgres) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	var w where
	if s := strings.TrimSpace(filter.Search); s != "" {
		w.add("name ILIKE ?", "%"+s+"%")
	}
	if filter.Group != nil {
		w.add("group_title = ?", *filter.Group)
	}
	if filter.HasEPG != nil {
		if *filter.HasEPG {
			w.addRaw(hasEPGCondition)
		} else {
			w.addRaw("NOT " + hasEPGCondition)
		}
	}
	if filter.Protected != nil {
		w.add("epg_update_protected = ?", *filter.Protected)
	}

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM channels`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, wrapErr("ListChannels count", err)
	}

	q := `SELECT ` + channelColumns + ` FROM channels` + w.String()
	q += ` ORDER BY lower(name), id LIMIT ` + w.next(ClampLimit(filter.Limit)) + ` OFFSET ` + w.next(max(filter.Offset, 0))
	rows, err := p.pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, 0, wrapErr("ListChannels", err)
	}
	channels, err := collectChannels(rows)
	if err != nil {
		return nil, 0, wrapErr("ListChannels scan", err)
	}
	return channels, total, nil
}

func (p *Postgres) AllChannels(ctx context.Context) ([]models.Channel, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+channelColumns+` FROM channels ORDER BY id`)
	if err != nil {
		return nil, wrapErr("AllChannels", err)
	}
	channels, err := collectChannels(rows)
	if err != nil {
		return nil, wrapErr("AllChannels scan", err)
	}
	return channels, nil
}

func (p *Postgres) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	ch, err := scanChannel(p.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("GetChannel", err)
	}
	return &ch, nil
}

func (p *Postgres) CreateChannel(ctx context.Context, ch *models.Channel) error {
	f := ch.EPG().Normalize()
	err := p.pool.QueryRow(ctx,
		`INSERT INTO channels (id, name, url, group_title, tvg_id, tvg_name, logo, epg_update_protected)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		ch.ID, ch.Name, ch.URL, ch.Group, f.TvgID, f.TvgName, f.Logo, ch.EPGUpdateProtected,
	).Scan(&ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return wrapErr("CreateChannel", err)
	}
	return nil
}

func (p *Postgres) UpsertChannel(ctx context.Context, ch *models.Channel) (bool, error) {
	f := ch.EPG().Normalize()
	var created bool
	err := p.pool.QueryRow(ctx,
		`INSERT INTO channels (id, name, url, group_title, tvg_id, tvg_name, logo)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, url = EXCLUDED.url, group_title = EXCLUDED.group_title, updated_at = NOW()
		 RETURNING (xmax = 0)`,
		ch.ID, ch.Name, ch.URL, ch.Group, f.TvgID, f.TvgName, f.Logo,
	).Scan(&created)
	if err != nil {
		return false, wrapErr("UpsertChannel", err)
	}
	return created, nil
}

func (p *Postgres) UpdateChannel(ctx context.Context, id string, fields ChannelUpdate) error {
	var sets []string
	args := []any{id}
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if fields.Name != nil {
		set("name", *fields.Name)
	}
	if fields.URL != nil {
		set("url", *fields.URL)
	}
	if fields.Group != nil {
		set("group_title", models.StrPtr(*fields.Group))
	}
	if len(sets) == 0 {
		_, err := p.GetChannel(ctx, id)
		return err
	}
	sets = append(sets, "updated_at = NOW()")
	tag, err := p.pool.Exec(ctx, `UPDATE channels SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	return expectOne("UpdateChannel", tag, err)
}

func (p *Postgres) SetChannelEPG(ctx context.Context, id string, fields models.EPGFields) error {
	f := fields.Normalize()
	tag, err := p.pool.Exec(ctx,
		`UPDATE channels SET tvg_id = $2, tvg_name = $3, logo = $4, updated_at = NOW() WHERE id = $1`,
		id, f.TvgID, f.TvgName, f.Logo,
	)
	return expectOne("SetChannelEPG", tag, err)
}

func (p *Postgres) ApplyChannelEPG(ctx context.Context, id string, fields models.EPGFields) error {
	f := fields.Normalize()
	tag, err := p.pool.Exec(ctx,
		`UPDATE channels SET tvg_id = $2, tvg_name = $3, logo = $4, updated_at = NOW()
		 WHERE id = $1 AND NOT epg_update_protected`,
		id, f.TvgID, f.TvgName, f.Logo,
	)
	if err != nil {
		return wrapErr("ApplyChannelEPG", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// zero rows: either gone or protected since the snapshot
	if _, err := p.GetChannel(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("ApplyChannelEPG %s: %w", id, ErrProtected)
}

func (p *Postgres) SetChannelProtection(ctx context.Context, id string, protected bool) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE channels SET epg_update_protected = $2, updated_at = NOW() WHERE id = $1`, id, protected)
	return expectOne("SetChannelProtection", tag, err)
}

func (p *Postgres) DeleteChannel(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	return expectOne("DeleteChannel", tag, err)
}
