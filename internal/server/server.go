// Package server is the thin HTTP transport over the engine: decode the
// question, invoke the engine, map failure kinds to status codes. No
// engine logic lives here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lantern-labs/lantern/internal/rag"
)

// Answerer is the single inbound operation the transport exposes.
type Answerer interface {
	Answer(ctx context.Context, question string) (*rag.Answer, error)
}

// Server wires the engine to HTTP.
type Server struct {
	engine Answerer
	reload func(ctx context.Context) error // nil when the backend has no local corpus
	logger *zap.Logger
}

// New creates a server. reload may be nil when the store backend does not
// support on-demand corpus reloads.
func New(engine Answerer, reload func(ctx context.Context) error, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, reload: reload, logger: logger}
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	ID           string   `json:"id"`
	Answer       string   `json:"answer"`
	Sources      []string `json:"sources"`
	UsedChunkIDs []string `json:"used_chunk_ids"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/query", s.handleQuery)
	mux.HandleFunc("/api/reload", s.handleReload)
	return withCORS(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "bad_request", "use POST")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "question is required")
		return
	}

	start := time.Now()
	answer, err := s.engine.Answer(r.Context(), req.Question)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	s.logger.Info("answered question",
		zap.String("request_id", answer.ID),
		zap.Int("used_chunks", len(answer.UsedChunkIDs)),
		zap.Duration("elapsed", time.Since(start)))

	writeJSON(w, http.StatusOK, queryResponse{
		ID:           answer.ID,
		Answer:       answer.Text,
		Sources:      answer.Sources,
		UsedChunkIDs: answer.UsedChunkIDs,
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "bad_request", "use POST")
		return
	}
	if s.reload == nil {
		writeError(w, http.StatusNotImplemented, "bad_request", "this backend does not support reload")
		return
	}
	if err := s.reload(r.Context()); err != nil {
		s.logger.Error("corpus reload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, string(rag.KindCorpusLoad),
			"the document corpus could not be loaded")
		return
	}
	s.logger.Info("corpus reloaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// writeFailure maps an engine failure to a status code and a structured
// body. The caller always gets a kind and a message, never internal detail.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var failure *rag.Failure
	if !errors.As(err, &failure) {
		writeError(w, http.StatusInternalServerError, string(rag.KindInternal), "internal error")
		return
	}
	writeError(w, statusFor(failure.Kind), string(failure.Kind), failure.Message)
}

func statusFor(kind rag.Kind) int {
	switch kind {
	case rag.KindEmbedding:
		return http.StatusBadRequest
	case rag.KindEmptyStore:
		return http.StatusServiceUnavailable
	case rag.KindGenerationTimeout:
		return http.StatusGatewayTimeout
	case rag.KindGenerationService:
		return http.StatusBadGateway
	case rag.KindCanceled:
		// Client went away; 499 in the nginx tradition.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Kind: kind, Message: message}})
}

// withCORS allows any origin so browser front ends on other hosts can call
// the API directly.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
