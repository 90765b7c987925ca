package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"manga-optimizer/internal/index"
	"manga-optimizer/internal/planner"
	"manga-optimizer/internal/profile"
	"manga-optimizer/internal/util"
)

// LibraryHandler serves the scan, chapter and plan operations
type LibraryHandler struct {
	State  *AppState
	Logger func(level, message string)
}

type scanRequest struct {
	Root    string `json:"root"`
	Profile string `json:"profile"`
	Series  string `json:"series"`
}

type scanResponse struct {
	Series   string          `json:"series"`
	Profile  profile.Profile `json:"profile"`
	Chapters []index.Chapter `json:"chapters"`
	Skips    []index.Skip    `json:"skips"`
}

// ScanHandler builds a fresh chapter index from a root directory
func (h *LibraryHandler) ScanHandler(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", err.Error())
		return
	}

	prof, err := profile.FromString(req.Profile)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", err.Error())
		return
	}

	logger := util.NewSimpleLogger("", h.Logger)
	ix, err := index.Build(req.Root, prof, logger)
	if err != nil {
		var notFound *index.NoChaptersFoundError
		if errors.As(err, &notFound) {
			respondJSONError(w, http.StatusUnprocessableEntity, "NoChaptersFoundError", err.Error())
			return
		}
		respondJSONError(w, http.StatusBadRequest, "ScanError", err.Error())
		return
	}

	// The original app defaults the series title to the root folder name.
	series := req.Series
	if series == "" {
		series = filepath.Base(req.Root)
	}
	h.State.SetIndex(ix, series)

	h.Logger("INFO", fmt.Sprintf("Indexed %d chapters under %s", len(ix.Chapters()), req.Root))
	respondJSON(w, scanResponse{
		Series:   series,
		Profile:  prof,
		Chapters: ix.Chapters(),
		Skips:    ix.Skips(),
	})
}

// ChaptersHandler lists the chapters of the loaded index
func (h *LibraryHandler) ChaptersHandler(w http.ResponseWriter, r *http.Request) {
	ix, series := h.State.Index()
	if ix == nil {
		respondJSONError(w, http.StatusNotFound, "ConfigError", "no index loaded; scan a directory first")
		return
	}
	respondJSON(w, scanResponse{
		Series:   series,
		Profile:  ix.Profile(),
		Chapters: ix.Chapters(),
		Skips:    ix.Skips(),
	})
}

type enableRequest struct {
	Enabled bool `json:"enabled"`
}

// ChapterEnableHandler toggles a chapter's inclusion in future plans
func (h *LibraryHandler) ChapterEnableHandler(w http.ResponseWriter, r *http.Request) {
	ix, _ := h.State.Index()
	if ix == nil {
		respondJSONError(w, http.StatusNotFound, "ConfigError", "no index loaded; scan a directory first")
		return
	}

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", "invalid chapter id")
		return
	}

	var req enableRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", err.Error())
		return
	}

	if err := ix.SetEnabled(id, req.Enabled); err != nil {
		respondJSONError(w, http.StatusNotFound, "ConfigError", err.Error())
		return
	}
	respondJSON(w, map[string]interface{}{"chapters": ix.Chapters()})
}

type moveRequest struct {
	Position int `json:"position"`
}

// ChapterMoveHandler moves a chapter to a new display position
func (h *LibraryHandler) ChapterMoveHandler(w http.ResponseWriter, r *http.Request) {
	ix, _ := h.State.Index()
	if ix == nil {
		respondJSONError(w, http.StatusNotFound, "ConfigError", "no index loaded; scan a directory first")
		return
	}

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", "invalid chapter id")
		return
	}

	var req moveRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", err.Error())
		return
	}

	if err := ix.MoveChapter(id, req.Position); err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", err.Error())
		return
	}
	respondJSON(w, map[string]interface{}{"chapters": ix.Chapters()})
}

type planRequest struct {
	ChaptersPerVolume int    `json:"chapters_per_volume"`
	StartVolume       int    `json:"start_volume"`
	Series            string `json:"series"`
}

// PlanHandler previews the volume plan for the current enabled chapters
func (h *LibraryHandler) PlanHandler(w http.ResponseWriter, r *http.Request) {
	ix, series := h.State.Index()
	if ix == nil {
		respondJSONError(w, http.StatusNotFound, "ConfigError", "no index loaded; scan a directory first")
		return
	}

	var req planRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", err.Error())
		return
	}
	if req.Series != "" {
		series = req.Series
	}

	plans, err := planner.Plan(ix.EnabledChapters(), planner.Options{
		ChaptersPerVolume: req.ChaptersPerVolume,
		StartVolume:       req.StartVolume,
		Series:            series,
	})
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", err.Error())
		return
	}

	totalPages := 0
	for _, p := range plans {
		totalPages += p.PageCount()
	}
	respondJSON(w, map[string]interface{}{
		"volumes":     plans,
		"total_pages": totalPages,
	})
}
