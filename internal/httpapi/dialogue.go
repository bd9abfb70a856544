package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Newrona-pi/textgame-chatapp/internal/character"
	"github.com/Newrona-pi/textgame-chatapp/internal/dialogue"
	"github.com/Newrona-pi/textgame-chatapp/internal/protocol"
)

type dialogueOp func(ctx context.Context, req protocol.DialogueRequest) dialogue.Result

// dialogueHandler answers 200 for every generated result, failures included,
// so clients can show the message. Only caller errors get a 4xx.
func (s *Server) dialogueHandler(op dialogueOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req protocol.DialogueRequest
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		res := op(r.Context(), req)
		if res.Outcome == dialogue.OutcomeInvalidRequest {
			respondError(w, http.StatusBadRequest, string(res.Outcome), res.Message)
			return
		}
		respondJSON(w, http.StatusOK, res.Response())
	}
}

type charactersResponse struct {
	Success    bool                `json:"success"`
	Characters []character.Profile `json:"characters"`
}

type characterResponse struct {
	Success   bool              `json:"success"`
	Character character.Profile `json:"character"`
}

func (s *Server) handleListCharacters(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, charactersResponse{Success: true, Characters: s.dialogue.Roster()})
}

func (s *Server) handleGetCharacter(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	p, err := s.dialogue.Character(id)
	if errors.Is(err, character.ErrNotFound) {
		respondError(w, http.StatusNotFound, "character_not_found", dialogue.MsgCharacterNotFound)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, characterResponse{Success: true, Character: p})
}
