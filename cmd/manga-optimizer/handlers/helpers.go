package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"manga-optimizer/internal/index"
)

// AppState is the mutable state shared by the handlers: the chapter
// index currently loaded and the series it belongs to. The index is
// mutated only through handler calls; pipeline runs take snapshots.
type AppState struct {
	mu     sync.Mutex
	index  *index.Index
	series string
}

// SetIndex replaces the loaded index after a scan
func (s *AppState) SetIndex(ix *index.Index, series string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = ix
	s.series = series
}

// Index returns the loaded index and its series title
func (s *AppState) Index() (*index.Index, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index, s.series
}

// respondJSON sends a JSON response with the given data
func respondJSON(w http.ResponseWriter, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(data)
}

// respondJSONError sends a JSON error response
func respondJSONError(w http.ResponseWriter, statusCode int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"kind":  kind,
	})
}

// decodeJSONBody decodes a JSON request body into dst
func decodeJSONBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}
