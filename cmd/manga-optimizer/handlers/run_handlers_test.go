package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manga-optimizer/internal"
	"manga-optimizer/internal/cache"
	"manga-optimizer/internal/enhance"
	"manga-optimizer/internal/index"
	"manga-optimizer/internal/profile"
)

func newRunHandler(t *testing.T) (*RunHandler, *mux.Router) {
	t.Helper()
	h := &RunHandler{
		State:        &AppState{},
		RunManager:   internal.NewRunManager(t.TempDir()),
		SessionStore: sessions.NewCookieStore([]byte("test-session-key")),
		Settings:     cache.New(t.TempDir()),
		StagingRoot:  t.TempDir(),
		Parallelism:  1,
		Logger:       func(level, message string) {},
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/run", h.StartRunHandler).Methods("POST")
	r.HandleFunc("/api/runs", h.RunsHandler).Methods("GET")
	r.HandleFunc("/api/runs/{id}", h.RunDetailHandler).Methods("GET")
	r.HandleFunc("/api/runs/{id}/cancel", h.RunCancelHandler).Methods("POST")
	r.HandleFunc("/api/preview", h.PreviewHandler).Methods("POST")
	r.HandleFunc("/api/settings", h.SettingsGetHandler).Methods("GET")
	r.HandleFunc("/api/settings", h.SettingsSaveHandler).Methods("POST")
	return h, r
}

// loadIndex scans a small on-disk library of real JPEGs into the handler
// state.
func loadIndex(t *testing.T, h *RunHandler, chapterCount, pagesPerChapter int) {
	t.Helper()
	root := t.TempDir()

	page := image.NewGray(image.Rect(0, 0, 8, 8))
	for c := 1; c <= chapterCount; c++ {
		dir := filepath.Join(root, fmt.Sprintf("Chapter %d", c))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for p := 1; p <= pagesPerChapter; p++ {
			f, err := os.Create(filepath.Join(dir, fmt.Sprintf("%03d.jpg", p)))
			require.NoError(t, err)
			require.NoError(t, jpeg.Encode(f, page, nil))
			require.NoError(t, f.Close())
		}
	}

	ix, err := index.Build(root, profile.INMANGA, nil)
	require.NoError(t, err)
	h.State.SetIndex(ix, "Series")
}

func TestResolveConfig(t *testing.T) {
	h, _ := newRunHandler(t)
	require.NoError(t, h.Settings.Put("Saved Series", enhance.Config{TargetWidth: 900, Quality: 70}))

	// Explicit config wins over everything.
	explicit := enhance.Config{TargetWidth: 600, Quality: 50}
	cfg, err := h.resolveConfig(runRequest{Config: &explicit, Preset: "text"}, "Saved Series")
	require.NoError(t, err)
	assert.Equal(t, explicit, cfg)

	// Then a named preset.
	cfg, err = h.resolveConfig(runRequest{Preset: "text"}, "Saved Series")
	require.NoError(t, err)
	assert.True(t, cfg.AdaptiveThreshold)

	_, err = h.resolveConfig(runRequest{Preset: "glossy"}, "Saved Series")
	assert.Error(t, err)

	// Then settings saved for the series.
	cfg, err = h.resolveConfig(runRequest{}, "Saved Series")
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.TargetWidth)

	// Then the defaults.
	cfg, err = h.resolveConfig(runRequest{}, "Unknown Series")
	require.NoError(t, err)
	assert.Equal(t, enhance.DefaultConfig(), cfg)
}

func TestStartRunHandler(t *testing.T) {
	h, r := newRunHandler(t)
	loadIndex(t, h, 4, 2)

	body, _ := json.Marshal(map[string]interface{}{
		"chapters_per_volume": 2,
		"config":              enhance.Config{Quality: 84},
	})
	req := httptest.NewRequest("POST", "/api/run", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		RunID      string `json:"run_id"`
		Volumes    int    `json:"volumes"`
		TotalPages int    `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Volumes)
	assert.Equal(t, 8, resp.TotalPages)
	require.NotEmpty(t, resp.RunID)

	// The run executes in the background and lands on a terminal status.
	require.Eventually(t, func() bool {
		run, ok := h.RunManager.GetRun(resp.RunID)
		return ok && run.Status != internal.RunStatusRunning
	}, 10*time.Second, 20*time.Millisecond)

	run, _ := h.RunManager.GetRun(resp.RunID)
	assert.Equal(t, internal.RunStatusCompleted, run.Status)
	assert.Equal(t, 8, run.PagesDone)
	require.NotNil(t, run.Summary)
	assert.Len(t, run.Summary.Volumes, 2)

	_, err := os.Stat(filepath.Join(h.StagingRoot, "Series - v01", "001", "00001.jpg"))
	assert.NoError(t, err)
}

func TestStartRunHandlerRequiresIndex(t *testing.T) {
	_, r := newRunHandler(t)
	req := httptest.NewRequest("POST", "/api/run", bytes.NewReader([]byte(`{"chapters_per_volume":2}`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunDetailAndCancelUnknownRun(t *testing.T) {
	_, r := newRunHandler(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/runs/nope/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func previewRequest(t *testing.T, fields map[string]string, imageBytes []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if imageBytes != nil {
		fw, err := mw.CreateFormFile("image", "page.png")
		require.NoError(t, err)
		_, err = fw.Write(imageBytes)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/preview", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestPreviewHandler(t *testing.T) {
	_, r := newRunHandler(t)

	src := image.NewGray(image.Rect(0, 0, 40, 60))
	for i := range src.Pix {
		src.Pix[i] = 230
	}
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, src))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, previewRequest(t, map[string]string{"preset": "trim"}, pngBuf.Bytes()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	out, err := enhance.Decode(rec.Body, "preview.jpg")
	require.NoError(t, err)
	assert.NotZero(t, out.Bounds().Dx())
}

func TestPreviewHandlerErrors(t *testing.T) {
	_, r := newRunHandler(t)

	// Missing upload.
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, previewRequest(t, nil, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown preset.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, previewRequest(t, map[string]string{"preset": "glossy"}, []byte("x")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Corrupt image.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, previewRequest(t, nil, []byte("not an image")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSettingsRoundtrip(t *testing.T) {
	h, r := newRunHandler(t)

	cfg := enhance.DefaultConfig()
	cfg.Dither = true
	body, _ := json.Marshal(settingsRequest{Series: "Series", Config: cfg})

	saveReq := httptest.NewRequest("POST", "/api/settings", bytes.NewReader(body))
	saveRec := httptest.NewRecorder()
	r.ServeHTTP(saveRec, saveReq)
	require.Equal(t, http.StatusOK, saveRec.Code)

	// The series cache picked the settings up.
	saved, ok := h.Settings.Get("Series")
	require.True(t, ok)
	assert.True(t, saved.Dither)

	// The session cookie carries them back on the next request.
	getReq := httptest.NewRequest("GET", "/api/settings", nil)
	for _, c := range saveRec.Result().Cookies() {
		getReq.AddCookie(c)
	}
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var resp struct {
		Config enhance.Config `json:"config"`
		Source string         `json:"source"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &resp))
	assert.Equal(t, "session", resp.Source)
	assert.True(t, resp.Config.Dither)

	// Without the cookie the saved series settings apply.
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/settings?series=Series", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "series", resp.Source)

	// And with neither, the defaults.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/settings", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "default", resp.Source)
	assert.Equal(t, enhance.DefaultConfig(), resp.Config)
}
