package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/service"
	"github.com/voyagen/epgsync/internal/store"
)

// --- EPG source handlers ---

func (s *Server) handleListEPGSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.svc.Store().ListEPGSources(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if sources == nil {
		sources = []models.EPGSource{}
	}
	s.writeJSON(w, http.StatusOK, sources)
}

type createSourceRequest struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled *bool  `json:"enabled"`
}

func (s *Server) handleCreateEPGSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	src := models.EPGSource{Name: req.Name, URL: req.URL, Enabled: true}
	if req.Enabled != nil {
		src.Enabled = *req.Enabled
	}
	if err := s.svc.CreateEPGSource(r.Context(), &src); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, src)
}

type updateSourceRequest struct {
	Name    *string `json:"name"`
	URL     *string `json:"url"`
	Enabled *bool   `json:"enabled"`
}

func (s *Server) handleUpdateEPGSource(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	var req updateSourceRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	src, err := s.svc.UpdateEPGSource(r.Context(), id, store.EPGSourceUpdate{
		Name:    req.Name,
		URL:     req.URL,
		Enabled: req.Enabled,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleDeleteEPGSource(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.svc.Store().DeleteEPGSource(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleRefreshEPGSource(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	res, err := s.svc.RefreshSource(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRefreshCatalog(w http.ResponseWriter, r *http.Request) {
	results, err := s.svc.RefreshCatalog(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if results == nil {
		results = []service.SourceResult{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sources": results})
}

// --- catalog handlers ---

func (s *Server) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CatalogFilter{Search: strings.TrimSpace(q.Get("search"))}
	if v := q.Get("source_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.fail(w, models.ValidationError{Field: "source_id", Message: "invalid source_id: " + v})
			return
		}
		filter.SourceID = &id
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		s.fail(w, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		s.fail(w, err)
		return
	}
	filter.Limit = store.ClampLimit(filter.Limit)
	filter.Offset = max(filter.Offset, 0)

	entries, total, err := s.svc.Store().SearchCatalog(r.Context(), filter)
	if err != nil {
		s.fail(w, err)
		return
	}
	if entries == nil {
		entries = []models.CatalogEntry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"channels": entries,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (s *Server) handleSuggestEPG(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		s.fail(w, models.ValidationError{Field: "name", Message: "name parameter is required"})
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, err)
		return
	}
	candidates, err := s.svc.SuggestEPG(r.Context(), name, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":        name,
		"suggestions": candidates,
	})
}

// --- pattern mapping handlers ---

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.ListMappings(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if records == nil {
		records = []models.MappingRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	var rec models.MappingRecord
	if err := decodeBody(r, &rec); err != nil {
		s.fail(w, err)
		return
	}
	m, err := s.svc.CreateMapping(r.Context(), rec)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, m.Record())
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.svc.Store().DeleteMapping(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	writeNoContent(w)
}

type previewRequest struct {
	models.MappingRecord
	Limit int `json:"limit"`
}

func (s *Server) handlePreviewMapping(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	res, err := s.svc.PreviewMapping(r.Context(), req.MappingRecord, req.Limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
