package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Newrona-pi/textgame-chatapp/internal/records"
)

type historyResponse struct {
	Success       bool               `json:"success"`
	Record        records.Record     `json:"record"`
	Conversations []records.LogEntry `json:"conversations"`
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "record store not configured")
		return
	}
	characterID := strings.TrimSpace(chi.URLParam(r, "character_id"))
	tagID := strings.TrimSpace(chi.URLParam(r, "tag_id"))

	h, err := s.records.History(r.Context(), characterID, tagID)
	if errors.Is(err, records.ErrNotFound) {
		respondError(w, http.StatusNotFound, "record_not_found", err.Error())
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("character_id", characterID).Msg("load tag history failed")
		respondError(w, http.StatusInternalServerError, "store_error", "failed to load history")
		return
	}
	respondJSON(w, http.StatusOK, historyResponse{Success: true, Record: h.Record, Conversations: h.Entries})
}

func (s *Server) handleAppendLogs(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "record store not configured")
		return
	}
	var req records.AppendRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.CharacterID = strings.TrimSpace(chi.URLParam(r, "character_id"))
	req.TagID = strings.TrimSpace(chi.URLParam(r, "tag_id"))

	h, err := s.records.Append(r.Context(), req)
	if errors.Is(err, records.ErrInvalidRequest) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("character_id", req.CharacterID).Msg("append tag history failed")
		respondError(w, http.StatusInternalServerError, "store_error", "failed to save history")
		return
	}
	respondJSON(w, http.StatusOK, historyResponse{Success: true, Record: h.Record, Conversations: h.Entries})
}
