package server

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/store"
)

// --- channel handlers ---

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ChannelFilter{Search: strings.TrimSpace(q.Get("search"))}
	if v := q.Get("group"); v != "" {
		filter.Group = &v
	}
	var err error
	if filter.HasEPG, err = queryBool(r, "has_epg"); err != nil {
		s.fail(w, err)
		return
	}
	if filter.Protected, err = queryBool(r, "protected"); err != nil {
		s.fail(w, err)
		return
	}
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

	channels, total, err := s.svc.Store().ListChannels(r.Context(), filter)
	if err != nil {
		s.fail(w, err)
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"channels": channels,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

type createChannelRequest struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	URL                string  `json:"url"`
	Group              *string `json:"group"`
	TvgID              *string `json:"tvg_id"`
	TvgName            *string `json:"tvg_name"`
	Logo               *string `json:"logo"`
	EPGUpdateProtected bool    `json:"epg_update_protected"`
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	ch := models.Channel{
		ID:                 req.ID,
		Name:               req.Name,
		URL:                req.URL,
		Group:              req.Group,
		TvgID:              req.TvgID,
		TvgName:            req.TvgName,
		Logo:               req.Logo,
		EPGUpdateProtected: req.EPGUpdateProtected,
	}
	if err := s.svc.CreateChannel(r.Context(), &ch); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.svc.Store().GetChannel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ch)
}

type updateChannelRequest struct {
	Name  *string `json:"name"`
	URL   *string `json:"url"`
	Group *string `json:"group"`
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	var req updateChannelRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	ch, err := s.svc.UpdateChannel(r.Context(), r.PathValue("id"), store.ChannelUpdate{
		Name:  req.Name,
		URL:   req.URL,
		Group: req.Group,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Store().DeleteChannel(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleSetChannelEPG(w http.ResponseWriter, r *http.Request) {
	var fields models.EPGFields
	if err := decodeBody(r, &fields); err != nil {
		s.fail(w, err)
		return
	}
	ch, err := s.svc.SetChannelEPG(r.Context(), r.PathValue("id"), fields)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ch)
}

type protectionRequest struct {
	Protected *bool `json:"protected"`
}

func (s *Server) handleSetChannelProtection(w http.ResponseWriter, r *http.Request) {
	var req protectionRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Protected == nil {
		s.fail(w, models.ValidationError{Field: "protected", Message: "protected is required"})
		return
	}
	ch, err := s.svc.SetChannelProtection(r.Context(), r.PathValue("id"), *req.Protected)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ch)
}

// --- playlist handlers ---

type importPlaylistRequest struct {
	URL   string `json:"url"`
	Group string `json:"group"`
}

func (s *Server) handleImportPlaylist(w http.ResponseWriter, r *http.Request) {
	var req importPlaylistRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	res, err := s.svc.ImportPlaylist(r.Context(), req.URL, req.Group)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExportPlaylist(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.svc.ExportPlaylist(r.Context(), &buf); err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/x-mpegurl")
	w.Header().Set("Content-Disposition", `inline; filename="playlist.m3u"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
