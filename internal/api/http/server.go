// Package httpapi exposes checkout sessions over HTTP: a small JSON command
// surface plus a server-sent-events stream per session.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/orderflow/orderflow/internal/application/checkout"
	"github.com/orderflow/orderflow/internal/engine"
	"github.com/orderflow/orderflow/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	checkoutSvc *checkout.Service
	sseHub      *sse.Hub
}

func NewServer(checkoutSvc *checkout.Service, sseHub *sse.Hub) *Server {
	return &Server{
		checkoutSvc: checkoutSvc,
		sseHub:      sseHub,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			// The stream endpoint holds its connection open; everything else
			// runs under a request timeout.
			r.Get("/{sessionId}/stream", s.streamSession)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(30 * time.Second))
				r.Post("/", s.createSession)
				r.Get("/{sessionId}", s.getSession)
				r.Delete("/{sessionId}", s.endSession)
				r.Post("/{sessionId}/events", s.dispatchEvent)
			})
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	Flow      string `json:"flow"`
	SessionID string `json:"sessionId,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.Flow == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "flow is required")
		return
	}
	resume := uuid.Nil
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "sessionId must be a uuid")
			return
		}
		resume = id
	}

	view, err := s.checkoutSvc.StartSession(req.Flow, resume)
	if err != nil {
		respondError(w, http.StatusBadRequest, "SESSION_START_FAILED", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "sessionId must be a uuid")
		return
	}
	view, err := s.checkoutSvc.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "sessionId must be a uuid")
		return
	}
	if err := s.checkoutSvc.EndSession(id); err != nil {
		respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (s *Server) dispatchEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "sessionId must be a uuid")
		return
	}
	var ev engine.Event
	if err := decodeBody(r, &ev); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if ev.Type == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "type is required")
		return
	}

	view, err := s.checkoutSvc.Dispatch(id, ev)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, view)
	case errors.Is(err, checkout.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
	case errors.Is(err, engine.ErrNoTransition):
		respondError(w, http.StatusConflict, "EVENT_NOT_HANDLED", err.Error())
	case errors.Is(err, engine.ErrTerminal):
		respondError(w, http.StatusConflict, "SESSION_CLOSED", err.Error())
	case strings.HasPrefix(string(ev.Type), "__"):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	default:
		// Action errors are user-recoverable; the surfaced message is also
		// on the session's lastError.
		respondError(w, http.StatusUnprocessableEntity, "EVENT_REJECTED", err.Error())
	}
}

func (s *Server) streamSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "sessionId must be a uuid")
		return
	}
	view, err := s.checkoutSvc.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	client := sse.NewClient(uuid.NewString(), id.String(), 32)
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(client.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// Send an initial comment to flush headers and keep the connection alive.
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Seed the subscriber with the current read model so it renders without
	// waiting for the next transition. The buffer is fresh, so this cannot
	// hit backpressure.
	_ = s.sseHub.SendToClient(client.ID, &sse.Message{Event: "state", Data: view})

	ctx := r.Context()
	for {
		select {
		case msg := <-client.MessageChan:
			if msg == nil {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = w.Write([]byte("event: "))
			_, _ = w.Write([]byte(msg.Event))
			_, _ = w.Write([]byte("\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-client.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
