package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/voyagen/epgsync/internal/models"
)

const sourceColumns = `id, url, name, enabled, last_updated, error_count, last_error, created_at`

func scanSource(row pgx.Row) (models.EPGSource, error) {
	var s models.EPGSource
	err := row.Scan(&s.ID, &s.URL, &s.Name, &s.Enabled, &s.LastUpdated, &s.ErrorCount, &s.LastError, &s.CreatedAt)
	return s, err
}

func (p *Postgres) ListEPGSources(ctx context.Context) ([]models.EPGSource, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+sourceColumns+` FROM epg_sources ORDER BY id`)
	if err != nil {
		return nil, wrapErr("ListEPGSources", err)
	}
	defer rows.Close()
	var out []models.EPGSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, wrapErr("ListEPGSources scan", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) GetEPGSource(ctx context.Context, id int64) (*models.EPGSource, error) {
	s, err := scanSource(p.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM epg_sources WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("GetEPGSource", err)
	}
	return &s, nil
}

func (p *Postgres) CreateEPGSource(ctx context.Context, src *models.EPGSource) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO epg_sources (url, name, enabled) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		src.URL, src.Name, src.Enabled,
	).Scan(&src.ID, &src.CreatedAt)
	if err != nil {
		return wrapErr("CreateEPGSource", err)
	}
	return nil
}

func (p *Postgres) UpdateEPGSource(ctx context.Context, id int64, fields EPGSourceUpdate) error {
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
	if fields.Enabled != nil {
		set("enabled", *fields.Enabled)
	}
	if len(sets) == 0 {
		_, err := p.GetEPGSource(ctx, id)
		return err
	}
	tag, err := p.pool.Exec(ctx, `UPDATE epg_sources SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	return expectOne("UpdateEPGSource", tag, err)
}

func (p *Postgres) DeleteEPGSource(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM epg_sources WHERE id = $1`, id)
	return expectOne("DeleteEPGSource", tag, err)
}

func (p *Postgres) RecordEPGFetch(ctx context.Context, id int64, fetchErr error) error {
	if fetchErr == nil {
		tag, err := p.pool.Exec(ctx,
			`UPDATE epg_sources SET last_updated = NOW(), error_count = 0, last_error = NULL WHERE id = $1`, id)
		return expectOne("RecordEPGFetch", tag, err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE epg_sources SET error_count = error_count + 1, last_error = $2 WHERE id = $1`,
		id, fetchErr.Error())
	return expectOne("RecordEPGFetch", tag, err)
}

func (p *Postgres) ReplaceCatalog(ctx context.Context, sourceID int64, entries []models.CatalogEntry) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return wrapErr("ReplaceCatalog begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM epg_channels WHERE source_id = $1`, sourceID); err != nil {
		return wrapErr("ReplaceCatalog delete", err)
	}
	if len(entries) > 0 {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(
				`INSERT INTO epg_channels (source_id, id, name, icon, language, name_vec)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (source_id, id) DO UPDATE SET
				   name = EXCLUDED.name, icon = EXCLUDED.icon, language = EXCLUDED.language, name_vec = EXCLUDED.name_vec`,
				sourceID, e.ID, e.Name, e.Icon, e.Language, vectorArg(e.NameVector),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return wrapErr("ReplaceCatalog insert", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapErr("ReplaceCatalog commit", err)
	}
	return nil
}

func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

const catalogSelect = `SELECT c.id, c.name, c.icon, c.language, c.source_id, s.last_updated
	FROM epg_channels c JOIN epg_sources s ON s.id = c.source_id`

func collectCatalog(rows pgx.Rows) ([]models.CatalogEntry, error) {
	defer rows.Close()
	var out []models.CatalogEntry
	for rows.Next() {
		var e models.CatalogEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Icon, &e.Language, &e.SourceID, &e.SourceUpdated); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) ListCatalog(ctx context.Context) ([]models.CatalogEntry, error) {
	rows, err := p.pool.Query(ctx, catalogSelect+` WHERE s.enabled ORDER BY c.id, c.source_id`)
	if err != nil {
		return nil, wrapErr("ListCatalog", err)
	}
	entries, err := collectCatalog(rows)
	if err != nil {
		return nil, wrapErr("ListCatalog scan", err)
	}
	return entries, nil
}

func (p *Postgres) SearchCatalog(ctx context.Context, filter CatalogFilter) ([]models.CatalogEntry, int, error) {
	var w where
	w.addRaw("s.enabled")
	if s := strings.TrimSpace(filter.Search); s != "" {
		w.add("(c.id ILIKE ? OR c.name ILIKE ?)", "%"+s+"%")
	}
	if filter.SourceID != nil {
		w.add("c.source_id = ?", *filter.SourceID)
	}
	var total int
	if err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM epg_channels c JOIN epg_sources s ON s.id = c.source_id`+w.String(), w.args...,
	).Scan(&total); err != nil {
		return nil, 0, wrapErr("SearchCatalog count", err)
	}
	q := catalogSelect + w.String() + ` ORDER BY lower(c.name), c.id, c.source_id LIMIT ` +
		w.next(ClampLimit(filter.Limit)) + ` OFFSET ` + w.next(max(filter.Offset, 0))
	rows, err := p.pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, 0, wrapErr("SearchCatalog", err)
	}
	entries, err := collectCatalog(rows)
	if err != nil {
		return nil, 0, wrapErr("SearchCatalog scan", err)
	}
	return entries, total, nil
}

func (p *Postgres) NearestCatalog(ctx context.Context, vec []float32, limit int) ([]models.CatalogEntry, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx,
		catalogSelect+` WHERE s.enabled AND c.name_vec IS NOT NULL
		 ORDER BY c.name_vec <=> $1, c.id, c.source_id LIMIT $2`,
		pgvector.NewVector(vec), ClampLimit(limit),
	)
	if err != nil {
		return nil, wrapErr("NearestCatalog", err)
	}
	entries, err := collectCatalog(rows)
	if err != nil {
		return nil, wrapErr("NearestCatalog scan", err)
	}
	return entries, nil
}
