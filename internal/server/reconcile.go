package server

import (
	"net/http"

	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/reconcile"
	"github.com/voyagen/epgsync/internal/service"
)

// --- reconciliation handlers ---

type updateChannelsRequest struct {
	RespectExisting  bool `json:"respect_existing"`
	CleanUnmatched   bool `json:"clean_unmatched"`
	DryRun           bool `json:"dry_run"`
	IncludeDecisions bool `json:"include_decisions"`
}

type autoScanRequest struct {
	updateChannelsRequest
	// nil uses the configured default.
	Threshold *float64 `json:"threshold"`
}

func (s *Server) handleUpdateChannels(w http.ResponseWriter, r *http.Request) {
	var req updateChannelsRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	s.runPass(w, r, service.RunRequest{
		Options: reconcile.Options{
			RespectExisting: req.RespectExisting,
			CleanUnmatched:  req.CleanUnmatched,
		},
		DryRun:           req.DryRun,
		IncludeDecisions: req.IncludeDecisions,
	})
}

func (s *Server) handleAutoScan(w http.ResponseWriter, r *http.Request) {
	var req autoScanRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	threshold := s.cfg.AutoScanThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	s.runPass(w, r, service.RunRequest{
		Options: reconcile.Options{
			RespectExisting: req.RespectExisting,
			CleanUnmatched:  req.CleanUnmatched,
			AutoScan:        true,
			Threshold:       threshold,
		},
		DryRun:           req.DryRun,
		IncludeDecisions: req.IncludeDecisions,
	})
}

// runPass runs req inline, or submits it to the runner when ?async=true.
func (s *Server) runPass(w http.ResponseWriter, r *http.Request, req service.RunRequest) {
	async, err := queryBool(r, "async")
	if err != nil {
		s.fail(w, err)
		return
	}
	if async != nil && *async {
		rec, err := s.runner.Submit(r.Context(), req)
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Location", "/api/epg/runs/"+rec.ID)
		s.writeJSON(w, http.StatusAccepted, rec)
		return
	}
	rep, err := s.rec.Run(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.fail(w, models.ValidationError{Field: "id", Message: "run id is required"})
		return
	}
	rec, err := s.runner.Get(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}
