package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manga-optimizer/internal/index"
	"manga-optimizer/internal/planner"
)

func newLibraryRouter(t *testing.T) (*mux.Router, *AppState) {
	t.Helper()
	state := &AppState{}
	h := &LibraryHandler{State: state, Logger: func(level, message string) {}}

	r := mux.NewRouter()
	r.HandleFunc("/api/scan", h.ScanHandler).Methods("POST")
	r.HandleFunc("/api/chapters", h.ChaptersHandler).Methods("GET")
	r.HandleFunc("/api/chapters/{id}/enabled", h.ChapterEnableHandler).Methods("POST")
	r.HandleFunc("/api/chapters/{id}/move", h.ChapterMoveHandler).Methods("POST")
	r.HandleFunc("/api/plan", h.PlanHandler).Methods("POST")
	return r, state
}

func writeLibrary(t *testing.T, chapterCount int) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "One Piece")
	for c := 1; c <= chapterCount; c++ {
		dir := filepath.Join(root, fmt.Sprintf("Chapter %d", c))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "001.jpg"), nil, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "002.jpg"), nil, 0o644))
	}
	return root
}

func doJSON(t *testing.T, r *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestScanHandler(t *testing.T) {
	r, state := newLibraryRouter(t)
	root := writeLibrary(t, 3)

	rec := doJSON(t, r, "POST", "/api/scan", map[string]string{
		"root": root, "profile": "INMANGA",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Series   string          `json:"series"`
		Profile  string          `json:"profile"`
		Chapters []index.Chapter `json:"chapters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "One Piece", resp.Series) // defaults to the folder name
	assert.Equal(t, "INMANGA", resp.Profile)
	assert.Len(t, resp.Chapters, 3)

	ix, series := state.Index()
	require.NotNil(t, ix)
	assert.Equal(t, "One Piece", series)
}

func TestScanHandlerErrors(t *testing.T) {
	r, _ := newLibraryRouter(t)
	root := writeLibrary(t, 1)

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"unknown_profile", map[string]string{"root": root, "profile": "mangadex"}, http.StatusBadRequest},
		{"missing_root", map[string]string{"root": filepath.Join(root, "nope"), "profile": "TMO"}, http.StatusBadRequest},
		{"unknown_field", map[string]string{"root": root, "profile": "TMO", "bogus": "x"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, r, "POST", "/api/scan", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestScanHandlerNoChapters(t *testing.T) {
	r, _ := newLibraryRouter(t)
	empty := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(empty, "extras"), 0o755))

	rec := doJSON(t, r, "POST", "/api/scan", map[string]string{
		"root": empty, "profile": "INMANGA",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NoChaptersFoundError", resp["kind"])
}

func TestChaptersRequiresScan(t *testing.T) {
	r, _ := newLibraryRouter(t)
	rec := doJSON(t, r, "GET", "/api/chapters", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChapterEnableAndMove(t *testing.T) {
	r, state := newLibraryRouter(t)
	root := writeLibrary(t, 3)
	require.Equal(t, http.StatusOK, doJSON(t, r, "POST", "/api/scan",
		map[string]string{"root": root, "profile": "INMANGA"}).Code)

	rec := doJSON(t, r, "POST", "/api/chapters/2/enabled", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)

	ix, _ := state.Index()
	assert.Len(t, ix.EnabledChapters(), 2)

	rec = doJSON(t, r, "POST", "/api/chapters/1/move", map[string]int{"position": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	chapters := ix.Chapters()
	assert.Equal(t, "Chapter 1", chapters[2].Name)

	// Unknown ids and bad positions are client errors.
	assert.Equal(t, http.StatusNotFound,
		doJSON(t, r, "POST", "/api/chapters/99/enabled", map[string]bool{"enabled": true}).Code)
	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, r, "POST", "/api/chapters/abc/move", map[string]int{"position": 0}).Code)
	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, r, "POST", "/api/chapters/1/move", map[string]int{"position": 9}).Code)
}

func TestPlanHandler(t *testing.T) {
	r, _ := newLibraryRouter(t)
	root := writeLibrary(t, 7)
	require.Equal(t, http.StatusOK, doJSON(t, r, "POST", "/api/scan",
		map[string]string{"root": root, "profile": "INMANGA"}).Code)

	rec := doJSON(t, r, "POST", "/api/plan", map[string]interface{}{
		"chapters_per_volume": 3,
		"series":              "Renamed",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Volumes    []planner.VolumePlan `json:"volumes"`
		TotalPages int                  `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Volumes, 3)
	assert.Equal(t, "Renamed - v01", resp.Volumes[0].BaseName)
	assert.Equal(t, 14, resp.TotalPages)

	// Invalid grouping is rejected before any planning happens.
	rec = doJSON(t, r, "POST", "/api/plan", map[string]interface{}{"chapters_per_volume": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
