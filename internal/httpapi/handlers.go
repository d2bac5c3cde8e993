package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/p-n-ai/labelquest/internal/catalog"
	"github.com/p-n-ai/labelquest/internal/game"
	"github.com/p-n-ai/labelquest/internal/progression"
	"github.com/p-n-ai/labelquest/internal/report"
)

const (
	maxBodyBytes = 1 << 16
	xlsxMime     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type selectTopicRequest struct {
	TopicID string `json:"topic_id"`
}

type selectLevelRequest struct {
	TopicID string `json:"topic_id"`
	Ordinal int    `json:"ordinal"`
}

type dropRequest struct {
	Label    string `json:"label"`
	TargetID string `json:"target_id"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name].HealthCheck(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{"status": "ready", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	if len(s.stats) > 0 {
		pools := make(map[string]any, len(s.stats))
		for name, stats := range s.stats {
			pools[name] = stats()
		}
		body["pools"] = pools
	}
	writeJSON(w, status, body)
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.engine.Topics(r.Context(), r.URL.Query().Get("player"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := s.engine.Levels(r.Context(), r.URL.Query().Get("player"), chi.URLParam(r, "topicID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.respondSnapshot(w, r, s.engine.Snapshot)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.respondSnapshot(w, r, s.engine.Reset)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	s.respondSnapshot(w, r, s.engine.Back)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.respondSnapshot(w, r, s.engine.Next)
}

func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	s.respondSnapshot(w, r, s.engine.ResetAll)
}

func (s *Server) respondSnapshot(w http.ResponseWriter, r *http.Request, action func(context.Context, string) (game.Snapshot, error)) {
	snap, err := action(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSelectTopic(w http.ResponseWriter, r *http.Request) {
	var req selectTopicRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snap, err := s.engine.SelectTopic(r.Context(), chi.URLParam(r, "playerID"), req.TopicID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSelectLevel(w http.ResponseWriter, r *http.Request) {
	var req selectLevelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snap, err := s.engine.SelectLevel(r.Context(), chi.URLParam(r, "playerID"), req.TopicID, req.Ordinal)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	var req dropRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.engine.Drop(r.Context(), chi.URLParam(r, "playerID"), req.Label, req.TargetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Stats(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	st, err := s.engine.Stats(r.Context(), playerID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var buf bytes.Buffer
	rep := report.Build(s.engine.Catalog(), playerID, st.Records, time.Now())
	if err := report.WriteWorkbook(&buf, rep); err != nil {
		slog.Error("report export failed", "player_id", playerID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "report export failed")
		return
	}

	w.Header().Set("Content-Type", xlsxMime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "labelquest-"+playerID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

func writeEngineError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, progression.ErrPlayerRequired):
		return http.StatusBadRequest, "player_required"
	case errors.Is(err, game.ErrUnknownTarget):
		return http.StatusBadRequest, "unknown_target"
	case errors.Is(err, catalog.ErrTopicNotFound):
		return http.StatusNotFound, "topic_not_found"
	case errors.Is(err, catalog.ErrLevelNotFound):
		return http.StatusNotFound, "level_not_found"
	case errors.Is(err, game.ErrLevelLocked):
		return http.StatusConflict, "level_locked"
	case errors.Is(err, game.ErrNoActiveTopic):
		return http.StatusConflict, "no_active_topic"
	case errors.Is(err, game.ErrNoActiveLevel):
		return http.StatusConflict, "no_active_level"
	case errors.Is(err, game.ErrLevelIncomplete):
		return http.StatusConflict, "level_incomplete"
	case errors.Is(err, game.ErrNoNextLevel):
		return http.StatusConflict, "no_next_level"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}
