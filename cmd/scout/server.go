package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"hackscout/llm"
	"hackscout/scout"
	"hackscout/store"
	"hackscout/toolcache"
)

type server struct {
	orch        *scout.Orchestrator
	cache       *toolcache.Cache
	hackathons  *store.Hackathons
	preferences *store.Preferences
	llm         *llm.Client
}

func newServer(orch *scout.Orchestrator, cache *toolcache.Cache, hackathons *store.Hackathons, preferences *store.Preferences, llmClient *llm.Client) *server {
	return &server{
		orch:        orch,
		cache:       cache,
		hackathons:  hackathons,
		preferences: preferences,
		llm:         llmClient,
	}
}

func (s *server) router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/discover", s.handleDiscover).Methods(http.MethodPost)
	api.HandleFunc("/preferences", s.handlePreferences).Methods(http.MethodPost)
	api.HandleFunc("/hackathons", s.handleHackathons).Methods(http.MethodGet)
	api.HandleFunc("/tools", s.handleInvalidateTool).Methods(http.MethodDelete)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

type discoverRequest struct {
	UserID  string   `json:"user_id"`
	Sources []string `json:"sources,omitempty"`
}

func (s *server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	report := s.orch.Run(r.Context(), req.UserID, req.Sources)
	writeJSON(w, http.StatusOK, report)
}

type preferencesRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

func (s *server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "user_id and text are required")
		return
	}

	vector, err := s.llm.Embed(r.Context(), req.Text)
	if err != nil {
		// Store the text anyway; the nudge agent needs the vector but the
		// preference itself should not be lost to a flaky embed call.
		log.Printf("⚠️ [API] Embedding failed for %s, storing text only: %v", req.UserID, err)
	}
	pref := &store.Preference{UserID: req.UserID, Text: req.Text, Vector: vector}
	if err := s.preferences.Save(r.Context(), pref); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "user_id": req.UserID})
}

func (s *server) handleHackathons(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := s.hackathons.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(records), "hackathons": records})
}

func (s *server) handleInvalidateTool(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, "source query parameter is required")
		return
	}
	key, err := toolcache.NormalizeSourceKey(source)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.cache.Invalidate(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "source_key": key})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ [API] Response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
