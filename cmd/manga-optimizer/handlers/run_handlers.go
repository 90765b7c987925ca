package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"manga-optimizer/internal"
	"manga-optimizer/internal/cache"
	"manga-optimizer/internal/enhance"
	"manga-optimizer/internal/executor"
	"manga-optimizer/internal/planner"
	"manga-optimizer/internal/util"
)

const (
	sessionName        = "manga-optimizer"
	sessionSettingsKey = "settings"

	// previewMaxBytes bounds preview uploads; pages larger than this are
	// not realistic scans.
	previewMaxBytes = 64 << 20
)

// RunHandler serves pipeline runs, the live preview and settings
type RunHandler struct {
	State        *AppState
	RunManager   *internal.RunManager
	SessionStore *sessions.CookieStore
	Settings     *cache.SettingsCache
	StagingRoot  string
	Parallelism  int
	Logger       func(level, message string)
}

type runRequest struct {
	ChaptersPerVolume int             `json:"chapters_per_volume"`
	StartVolume       int             `json:"start_volume"`
	Series            string          `json:"series"`
	Preset            string          `json:"preset"`
	Config            *enhance.Config `json:"config"`
	CleanStaging      bool            `json:"clean_staging"`
}

// resolveConfig picks the enhancement config for a run: an explicit
// config wins, then a named preset, then settings saved for the series,
// then the defaults.
func (h *RunHandler) resolveConfig(req runRequest, series string) (enhance.Config, error) {
	if req.Config != nil {
		return *req.Config, nil
	}
	if req.Preset != "" {
		return enhance.Preset(req.Preset)
	}
	if cfg, ok := h.Settings.Get(series); ok {
		return cfg, nil
	}
	return enhance.DefaultConfig(), nil
}

// StartRunHandler plans volumes from a snapshot of the enabled
// chapters and starts a pipeline run in the background
func (h *RunHandler) StartRunHandler(w http.ResponseWriter, r *http.Request) {
	ix, series := h.State.Index()
	if ix == nil {
		respondJSONError(w, http.StatusNotFound, "ConfigError", "no index loaded; scan a directory first")
		return
	}

	var req runRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", err.Error())
		return
	}
	if req.Series != "" {
		series = req.Series
	}

	cfg, err := h.resolveConfig(req, series)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", err.Error())
		return
	}

	// Snapshot now: reordering or toggling chapters after this point
	// does not affect the running pipeline.
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

	run := h.RunManager.NewRun(series, totalPages)
	ctx, cancel := context.WithCancel(context.Background())
	run.CancelFunc = cancel

	h.Logger("INFO", fmt.Sprintf("Starting run %s: %d volume(s), %d page(s)", run.ID, len(plans), totalPages))

	go func() {
		defer cancel()
		summary := executor.Run(ctx, plans, cfg, executor.Options{
			StagingRoot:  h.StagingRoot,
			Parallelism:  h.Parallelism,
			CleanStaging: req.CleanStaging,
			Logger:       util.NewSimpleLogger(run.ID, h.Logger),
			Progress: func(done, total int) {
				h.RunManager.UpdateRun(run.ID, func(rn *internal.Run) {
					rn.PagesDone = done
					rn.PagesTotal = total
					rn.Message = fmt.Sprintf("Processed %d/%d pages", done, total)
				})
			},
		})
		h.RunManager.FinishRun(run.ID, summary)
	}()

	w.WriteHeader(http.StatusAccepted)
	respondJSON(w, map[string]interface{}{
		"run_id":      run.ID,
		"volumes":     len(plans),
		"total_pages": totalPages,
	})
}

// RunsHandler lists all runs
func (h *RunHandler) RunsHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.RunManager.ListRuns())
}

// RunDetailHandler returns one run with its summary
func (h *RunHandler) RunDetailHandler(w http.ResponseWriter, r *http.Request) {
	run, exists := h.RunManager.GetRun(mux.Vars(r)["id"])
	if !exists {
		respondJSONError(w, http.StatusNotFound, "ConfigError", "no such run")
		return
	}
	respondJSON(w, run)
}

// RunCancelHandler requests cooperative cancellation of a run
func (h *RunHandler) RunCancelHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.RunManager.CancelRun(id) {
		respondJSONError(w, http.StatusConflict, "ConfigError", "run is not active")
		return
	}
	h.Logger("INFO", "Cancellation requested for run "+id)
	respondJSON(w, map[string]string{"status": "cancelling"})
}

// PreviewHandler processes one uploaded image with the same pipeline a
// production run uses and returns the result as JPEG, for live
// before/after comparison
func (h *RunHandler) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(previewMaxBytes); err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", "missing image upload")
		return
	}
	defer file.Close()

	cfg := enhance.DefaultConfig()
	if preset := r.FormValue("preset"); preset != "" {
		cfg, err = enhance.Preset(preset)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "ConfigError", err.Error())
			return
		}
	}
	if raw := r.FormValue("config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			respondJSONError(w, http.StatusBadRequest, "ConfigError", "invalid config: "+err.Error())
			return
		}
	}

	img, err := enhance.Decode(file, header.Filename)
	if err != nil {
		respondJSONError(w, http.StatusUnprocessableEntity, "UnsupportedImageError", err.Error())
		return
	}

	processed := enhance.Process(img, cfg)
	w.Header().Set("Content-Type", "image/jpeg")
	if err := enhance.EncodeJPEG(w, processed, cfg.Quality); err != nil {
		h.Logger("ERROR", "Encoding preview: "+err.Error())
	}
}

type settingsRequest struct {
	Series string         `json:"series"`
	Config enhance.Config `json:"config"`
}

// SettingsGetHandler returns the effective enhancement settings: the
// browser session's last-used settings, then saved series settings,
// then the defaults
func (h *RunHandler) SettingsGetHandler(w http.ResponseWriter, r *http.Request) {
	series := r.URL.Query().Get("series")

	session, _ := h.SessionStore.Get(r, sessionName)
	if raw, ok := session.Values[sessionSettingsKey].(string); ok {
		var cfg enhance.Config
		if err := json.Unmarshal([]byte(raw), &cfg); err == nil {
			respondJSON(w, map[string]interface{}{"config": cfg, "source": "session"})
			return
		}
	}

	if series != "" {
		if cfg, ok := h.Settings.Get(series); ok {
			respondJSON(w, map[string]interface{}{"config": cfg, "source": "series"})
			return
		}
	}
	respondJSON(w, map[string]interface{}{"config": enhance.DefaultConfig(), "source": "default"})
}

// SettingsSaveHandler remembers enhancement settings in the browser
// session and, when a series is named, in the per-series cache
func (h *RunHandler) SettingsSaveHandler(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", err.Error())
		return
	}

	raw, err := json.Marshal(req.Config)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "ConfigError", err.Error())
		return
	}

	session, _ := h.SessionStore.Get(r, sessionName)
	session.Values[sessionSettingsKey] = string(raw)
	if err := session.Save(r, w); err != nil {
		h.Logger("WARNING", "Saving session: "+err.Error())
	}

	if req.Series != "" {
		if err := h.Settings.Put(req.Series, req.Config); err != nil {
			h.Logger("WARNING", "Persisting series settings: "+err.Error())
		}
	}
	respondJSON(w, map[string]string{"status": "saved"})
}
