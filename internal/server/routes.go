package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/tmebrain/internal/brain"
)

var errEmptyBody = errors.New("request body is empty")

// errAskFailed is the client-facing message when a question cannot be taken
// on; details stay in the log.
const errAskFailed = "could not process the request, please try again"

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string `json:"query"`
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid json"})
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "query required"})
		return
	}

	res, err := s.brain.Answer(r.Context(), query, req.SessionID)
	if err != nil {
		s.log.Error().Err(err).Str("session", req.SessionID).Msg("ask failed")
		respondJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": errAskFailed})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"answer":     res.Answer,
		"session_id": res.SessionID,
		"source":     res.Source,
	})
}

func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Texts    []string         `json:"texts"`
		Metadata []map[string]any `json:"metadata"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Texts) == 0 {
		respondError(w, http.StatusBadRequest, "texts required")
		return
	}

	ids, err := s.brain.AddDocuments(r.Context(), req.Texts, req.Metadata)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"added": len(ids), "ids": ids})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	items, err := s.brain.LatestNews(r.Context(), r.URL.Query().Get("category"), limit)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"count": len(items), "news": items})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.brain.Stats(r.Context())
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days  int  `json:"days"`
		Check bool `json:"check"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if req.Check {
		res, err := s.brain.CheckStorage(r.Context())
		if err != nil {
			respondError(w, statusFor(err), err.Error())
			return
		}
		if res == nil {
			respondJSON(w, http.StatusOK, map[string]any{"cleaned": false})
			return
		}
		respondJSON(w, http.StatusOK, res)
		return
	}

	res, err := s.brain.ForceCleanup(r.Context(), req.Days)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.brain.Session(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session_id":       sess.SessionID,
		"current_topic":    sess.CurrentTopic,
		"recent_questions": sess.RecentQuestions,
		"summary":          sess.Summary,
		"created_at":       sess.CreatedAt,
		"updated_at":       sess.UpdatedAt,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.brain.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSetSummary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Summary string `json:"summary"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := s.brain.SetSessionSummary(r.Context(), chi.URLParam(r, "sessionID"), req.Summary); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.brain.SessionHistory(r.Context(), chi.URLParam(r, "sessionID"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type entryJSON struct {
		Question  string `json:"question"`
		Answer    string `json:"answer"`
		Source    string `json:"source"`
		Timestamp int64  `json:"timestamp"`
	}
	out := make([]entryJSON, len(records))
	for i, rec := range records {
		out[i] = entryJSON{rec.Question, rec.Answer, rec.Source, rec.Timestamp}
	}
	respondJSON(w, http.StatusOK, map[string]any{"count": len(out), "history": out})
}

func statusFor(err error) int {
	if errors.Is(err, brain.ErrNoIndex) || errors.Is(err, brain.ErrNoRetention) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		// Only a body with no JSON value at all is empty; a cut-off body
		// yields io.ErrUnexpectedEOF and is malformed.
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
