package web

import (
	"encoding/json"
	"net/http"
)

const recentRunsLimit = 50

var indexFiles = []string{"base.html", "pages/index.html", "partials/report.html", "partials/error.html"}

func (s *Server) indexData(health string, view *reportView, errMsg string) map[string]any {
	return map[string]any{
		"Provider":       s.service.Provider(),
		"Health":         health,
		"Result":         view,
		"Error":          errMsg,
		"MaxUploadBytes": s.maxUploadBytes,
		"RunLog":         s.runs != nil,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.renderPage(w, http.StatusOK, s.indexData("", nil, ""), indexFiles...); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.NotFound(w, r)
		return
	}

	runs, err := s.runs.ListRecent(r.Context(), recentRunsLimit)
	if err != nil {
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		s.logger.Error("list runs failed", "error", err)
		return
	}

	if err := s.renderPage(w, http.StatusOK,
		map[string]any{"Runs": runs, "Provider": s.service.Provider(), "RunLog": true},
		"base.html", "pages/runs.html",
	); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":   "ok",
		"provider": s.service.Provider(),
	}); err != nil {
		s.logger.Error("write healthz failed", "error", err)
	}
}
