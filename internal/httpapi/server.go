package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Newrona-pi/textgame-chatapp/internal/character"
	"github.com/Newrona-pi/textgame-chatapp/internal/config"
	"github.com/Newrona-pi/textgame-chatapp/internal/dialogue"
	"github.com/Newrona-pi/textgame-chatapp/internal/observability"
	"github.com/Newrona-pi/textgame-chatapp/internal/protocol"
	"github.com/Newrona-pi/textgame-chatapp/internal/records"
)

// DialogueService is the orchestration surface the routes marshal to.
type DialogueService interface {
	Start(ctx context.Context, req protocol.DialogueRequest) dialogue.Result
	Next(ctx context.Context, req protocol.DialogueRequest) dialogue.Result
	CharacterMessage(ctx context.Context, req protocol.DialogueRequest) dialogue.Result
	Options(ctx context.Context, req protocol.DialogueRequest) dialogue.Result
	Roster() []character.Profile
	Character(id string) (character.Profile, error)
}

type Server struct {
	cfg      config.Config
	dialogue DialogueService
	records  records.Store
	metrics  *observability.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, svc DialogueService, store records.Store, metrics *observability.Metrics, log zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		dialogue: svc,
		records:  store,
		metrics:  metrics,
		log:      log.With().Str("component", "httpapi").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(s.recoverPanics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/api", func(r chi.Router) {
		r.Post("/dialogue/start", s.dialogueHandler(s.dialogue.Start))
		r.Post("/dialogue/next", s.dialogueHandler(s.dialogue.Next))
		r.Post("/dialogue/character", s.dialogueHandler(s.dialogue.CharacterMessage))
		r.Post("/dialogue/options", s.dialogueHandler(s.dialogue.Options))
		r.Get("/dialogue/ws", s.handleDialogueWS)

		r.Get("/characters", s.handleListCharacters)
		r.Get("/characters/{id}", s.handleGetCharacter)

		r.Get("/nfc/{character_id}/{tag_id}/logs", s.handleGetLogs)
		r.Post("/nfc/{character_id}/{tag_id}/logs", s.handleAppendLogs)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"characters":  len(s.dialogue.Roster()),
		"record_mode": s.recordMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	n := len(s.dialogue.Roster())
	status, code := "ready", http.StatusOK
	if n == 0 {
		status, code = "no_characters", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"status":      status,
		"characters":  n,
		"record_mode": s.recordMode(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) recordMode() string {
	switch s.records.(type) {
	case nil:
		return "disabled"
	case *records.InMemoryStore:
		return "in-memory"
	case *records.SQLiteStore:
		return "sqlite"
	case *records.PostgresStore:
		return "postgres"
	default:
		return "custom"
	}
}

// checkOrigin allows configured origins, same-host browsers and clients that
// send no Origin header.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := s.log.Debug()
		if status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("path", r.URL.Path).
				Msg("handler panicked")
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
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

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
