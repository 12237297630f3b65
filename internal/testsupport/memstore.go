// Package testsupport provides an in-memory store.Store for service and
// server tests.
package testsupport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/store"
)

// MemStore is a goroutine-safe in-memory Store. The exported error fields
// and hooks inject failures.
type MemStore struct {
	mu       sync.Mutex
	channels map[string]models.Channel
	sources  map[int64]models.EPGSource
	catalog  map[int64][]models.CatalogEntry
	mappings map[int64]models.PatternMapping
	nextID   int64

	// Now stamps rows; defaults to time.Now.
	Now func() time.Time

	ChannelsErr error
	CatalogErr  error
	MappingsErr error
	// SetEPGHook runs before every SetChannelEPG and ApplyChannelEPG; a
	// non-nil error fails the write.
	SetEPGHook func(ctx context.Context, id string) error

	// EPGWrites counts successful EPG writes.
	EPGWrites int
}

func NewMemStore() *MemStore {
	return &MemStore{
		channels: make(map[string]models.Channel),
		sources:  make(map[int64]models.EPGSource),
		catalog:  make(map[int64][]models.CatalogEntry),
		mappings: make(map[int64]models.PatternMapping),
		Now:      time.Now,
	}
}

var _ store.Store = (*MemStore)(nil)

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemStore) now() *time.Time {
	t := m.Now()
	return &t
}

// --- seeding helpers ---

// AddChannels stores channels as-is.
func (m *MemStore) AddChannels(chs ...models.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range chs {
		m.channels[ch.ID] = cloneChannel(ch)
	}
}

// AddSource stores src with its catalog and returns the assigned id.
func (m *MemStore) AddSource(src models.EPGSource, entries ...models.CatalogEntry) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	src.ID = m.id()
	m.sources[src.ID] = src
	for i := range entries {
		entries[i].SourceID = src.ID
	}
	m.catalog[src.ID] = entries
	return src.ID
}

// AddMappings stores mappings, assigning ids.
func (m *MemStore) AddMappings(ms ...models.PatternMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pm := range ms {
		pm.ID = m.id()
		m.mappings[pm.ID] = pm
	}
}

// Channel returns a copy of the stored channel.
func (m *MemStore) Channel(id string) (models.Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	return cloneChannel(ch), ok
}

// --- channels ---

func (m *MemStore) ListChannels(_ context.Context, f store.ChannelFilter) ([]models.Channel, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ChannelsErr != nil {
		return nil, 0, m.ChannelsErr
	}
	var out []models.Channel
	for _, ch := range m.sortedChannels() {
		if f.Search != "" && !strings.Contains(strings.ToLower(ch.Name), strings.ToLower(strings.TrimSpace(f.Search))) {
			continue
		}
		if f.Group != nil && models.StrVal(ch.Group) != *f.Group {
			continue
		}
		if f.HasEPG != nil && ch.HasEPG() != *f.HasEPG {
			continue
		}
		if f.Protected != nil && ch.EPGUpdateProtected != *f.Protected {
			continue
		}
		out = append(out, ch)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	total := len(out)
	start := min(max(f.Offset, 0), total)
	end := min(start+store.ClampLimit(f.Limit), total)
	return out[start:end], total, nil
}

func (m *MemStore) AllChannels(_ context.Context) ([]models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ChannelsErr != nil {
		return nil, m.ChannelsErr
	}
	return m.sortedChannels(), nil
}

func (m *MemStore) sortedChannels() []models.Channel {
	out := make([]models.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, cloneChannel(ch))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemStore) GetChannel(_ context.Context, id string) (*models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		return nil, fmt.Errorf("GetChannel: %w", store.ErrNotFound)
	}
	c := cloneChannel(ch)
	return &c, nil
}

func (m *MemStore) CreateChannel(_ context.Context, ch *models.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[ch.ID]; ok {
		return fmt.Errorf("CreateChannel: %w", store.ErrConflict)
	}
	ch.SetEPG(ch.EPG())
	ch.CreatedAt, ch.UpdatedAt = m.now(), m.now()
	m.channels[ch.ID] = cloneChannel(*ch)
	return nil
}

func (m *MemStore) UpsertChannel(_ context.Context, ch *models.Channel) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.channels[ch.ID]; ok {
		cur.Name, cur.URL, cur.Group = ch.Name, ch.URL, ch.Group
		cur.UpdatedAt = m.now()
		m.channels[ch.ID] = cur
		return false, nil
	}
	c := cloneChannel(*ch)
	c.SetEPG(c.EPG())
	c.CreatedAt, c.UpdatedAt = m.now(), m.now()
	m.channels[ch.ID] = c
	return true, nil
}

func (m *MemStore) UpdateChannel(_ context.Context, id string, f store.ChannelUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		return fmt.Errorf("UpdateChannel: %w", store.ErrNotFound)
	}
	if f.Name != nil {
		ch.Name = *f.Name
	}
	if f.URL != nil {
		ch.URL = *f.URL
	}
	if f.Group != nil {
		ch.Group = models.StrPtr(*f.Group)
	}
	ch.UpdatedAt = m.now()
	m.channels[id] = ch
	return nil
}

func (m *MemStore) SetChannelEPG(ctx context.Context, id string, fields models.EPGFields) error {
	return m.writeEPG(ctx, "SetChannelEPG", id, fields, false)
}

func (m *MemStore) ApplyChannelEPG(ctx context.Context, id string, fields models.EPGFields) error {
	return m.writeEPG(ctx, "ApplyChannelEPG", id, fields, true)
}

func (m *MemStore) writeEPG(ctx context.Context, op, id string, fields models.EPGFields, guarded bool) error {
	if m.SetEPGHook != nil {
		if err := m.SetEPGHook(ctx, id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	if guarded && ch.EPGUpdateProtected {
		return fmt.Errorf("%s %s: %w", op, id, store.ErrProtected)
	}
	ch.SetEPG(fields)
	ch.UpdatedAt = m.now()
	m.channels[id] = ch
	m.EPGWrites++
	return nil
}

func (m *MemStore) SetChannelProtection(_ context.Context, id string, protected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		return fmt.Errorf("SetChannelProtection: %w", store.ErrNotFound)
	}
	ch.EPGUpdateProtected = protected
	m.channels[id] = ch
	return nil
}

func (m *MemStore) DeleteChannel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[id]; !ok {
		return fmt.Errorf("DeleteChannel: %w", store.ErrNotFound)
	}
	delete(m.channels, id)
	return nil
}

// --- sources and catalog ---

func (m *MemStore) ListEPGSources(_ context.Context) ([]models.EPGSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.EPGSource, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) GetEPGSource(_ context.Context, id int64) (*models.EPGSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return nil, fmt.Errorf("GetEPGSource: %w", store.ErrNotFound)
	}
	return &s, nil
}

func (m *MemStore) CreateEPGSource(_ context.Context, src *models.EPGSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sources {
		if s.URL == src.URL {
			return fmt.Errorf("CreateEPGSource: %w", store.ErrConflict)
		}
	}
	src.ID = m.id()
	src.CreatedAt = m.now()
	m.sources[src.ID] = *src
	return nil
}

func (m *MemStore) UpdateEPGSource(_ context.Context, id int64, f store.EPGSourceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("UpdateEPGSource: %w", store.ErrNotFound)
	}
	if f.Name != nil {
		s.Name = *f.Name
	}
	if f.URL != nil {
		s.URL = *f.URL
	}
	if f.Enabled != nil {
		s.Enabled = *f.Enabled
	}
	m.sources[id] = s
	return nil
}

func (m *MemStore) DeleteEPGSource(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return fmt.Errorf("DeleteEPGSource: %w", store.ErrNotFound)
	}
	delete(m.sources, id)
	delete(m.catalog, id)
	return nil
}

func (m *MemStore) RecordEPGFetch(_ context.Context, id int64, fetchErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("RecordEPGFetch: %w", store.ErrNotFound)
	}
	if fetchErr == nil {
		s.LastUpdated, s.ErrorCount, s.LastError = m.now(), 0, nil
	} else {
		msg := fetchErr.Error()
		s.ErrorCount++
		s.LastError = &msg
	}
	m.sources[id] = s
	return nil
}

func (m *MemStore) ReplaceCatalog(_ context.Context, sourceID int64, entries []models.CatalogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[sourceID]; !ok {
		return fmt.Errorf("ReplaceCatalog: %w", store.ErrNotFound)
	}
	cp := append([]models.CatalogEntry(nil), entries...)
	for i := range cp {
		cp[i].SourceID = sourceID
	}
	m.catalog[sourceID] = cp
	return nil
}

// enabledCatalog returns the catalog of enabled sources ordered by id then source.
func (m *MemStore) enabledCatalog() []models.CatalogEntry {
	var out []models.CatalogEntry
	for sid, entries := range m.catalog {
		src, ok := m.sources[sid]
		if !ok || !src.Enabled {
			continue
		}
		for _, e := range entries {
			e.SourceUpdated = src.LastUpdated
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out
}

func (m *MemStore) ListCatalog(_ context.Context) ([]models.CatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CatalogErr != nil {
		return nil, m.CatalogErr
	}
	return m.enabledCatalog(), nil
}

func (m *MemStore) SearchCatalog(_ context.Context, f store.CatalogFilter) ([]models.CatalogEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CatalogErr != nil {
		return nil, 0, m.CatalogErr
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	var out []models.CatalogEntry
	for _, e := range m.enabledCatalog() {
		if q != "" && !strings.Contains(strings.ToLower(e.ID), q) && !strings.Contains(strings.ToLower(e.Name), q) {
			continue
		}
		if f.SourceID != nil && e.SourceID != *f.SourceID {
			continue
		}
		out = append(out, e)
	}
	total := len(out)
	start := min(max(f.Offset, 0), total)
	end := min(start+store.ClampLimit(f.Limit), total)
	return out[start:end], total, nil
}

// NearestCatalog orders by dot product, which equals cosine similarity for
// the unit vectors Fingerprint produces.
func (m *MemStore) NearestCatalog(_ context.Context, vec []float32, limit int) ([]models.CatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CatalogErr != nil {
		return nil, m.CatalogErr
	}
	type scored struct {
		e models.CatalogEntry
		s float32
	}
	var all []scored
	for _, e := range m.enabledCatalog() {
		if len(e.NameVector) != len(vec) || len(vec) == 0 {
			continue
		}
		var dot float32
		for i := range vec {
			dot += vec[i] * e.NameVector[i]
		}
		all = append(all, scored{e, dot})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].s > all[j].s })
	limit = store.ClampLimit(limit)
	out := make([]models.CatalogEntry, 0, min(limit, len(all)))
	for i := 0; i < len(all) && i < limit; i++ {
		out = append(out, all[i].e)
	}
	return out, nil
}

// --- mappings ---

func (m *MemStore) ListMappings(_ context.Context) ([]models.PatternMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MappingsErr != nil {
		return nil, m.MappingsErr
	}
	out := make([]models.PatternMapping, 0, len(m.mappings))
	for _, pm := range m.mappings {
		out = append(out, pm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) CreateMapping(_ context.Context, pm *models.PatternMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.mappings {
		if existing.Key() == pm.Key() {
			return fmt.Errorf("CreateMapping: %w", store.ErrConflict)
		}
	}
	pm.ID = m.id()
	m.mappings[pm.ID] = *pm
	return nil
}

func (m *MemStore) DeleteMapping(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mappings[id]; !ok {
		return fmt.Errorf("DeleteMapping: %w", store.ErrNotFound)
	}
	delete(m.mappings, id)
	return nil
}

func cloneChannel(ch models.Channel) models.Channel {
	cp := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	ch.Group, ch.TvgID, ch.TvgName, ch.Logo = cp(ch.Group), cp(ch.TvgID), cp(ch.TvgName), cp(ch.Logo)
	return ch
}
