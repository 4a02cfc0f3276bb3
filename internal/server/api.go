package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/giantswarm/llm-judge/internal/judge"
	"github.com/giantswarm/llm-judge/internal/record"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultWriteTimeout      = 120 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	maxRequestBody           = 1 << 20

	// ShutdownTimeout bounds graceful shutdown of the HTTP servers.
	ShutdownTimeout = 10 * time.Second
)

// Middleware wraps protected routes, e.g. with OAuth token validation.
type Middleware func(http.Handler) http.Handler

// NewHandler returns the full HTTP surface: health and metrics endpoints,
// the REST API under /api and, when mcpHandler is set, the MCP endpoint.
// protect wraps the API and MCP routes; it may be nil.
func NewHandler(sc *ServerContext, mcpEndpoint string, mcpHandler http.Handler, protect Middleware) http.Handler {
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if sc.Metrics != nil {
		r.Handle("/metrics", sc.Metrics.Handler())
	}

	r.Mount("/api", protect(NewAPIRouter(sc)))
	if mcpHandler != nil {
		r.Handle(mcpEndpoint, protect(mcpHandler))
	}
	return r
}

// NewHTTPServer creates an http.Server with the default timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
}

// NewAPIRouter returns the REST and websocket API.
func NewAPIRouter(sc *ServerContext) chi.Router {
	h := &apiHandler{sc: sc}

	r := chi.NewRouter()
	r.Post("/runs", h.startRun)
	r.Get("/state", h.getState)
	r.Delete("/state/answers/{model}", h.removeRunAnswer)
	r.Get("/events", h.events)

	r.Route("/records", func(r chi.Router) {
		r.Get("/", h.listRecords)
		r.Get("/{id}", h.getRecord)
		r.Delete("/{id}", h.deleteRecord)
		r.Delete("/{id}/models/{model}", h.removeRecordAnswer)
	})

	r.Get("/models", h.listModels)
	return r
}

type apiHandler struct {
	sc *ServerContext
}

type errorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (h *apiHandler) startRun(w http.ResponseWriter, r *http.Request) {
	if h.sc.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "run coordinator is not configured")
		return
	}

	var cfg judge.RunConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid run configuration: "+err.Error())
		return
	}

	err := h.sc.Coordinator.Start(r.Context(), cfg)
	var verr *judge.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, h.sc.Coordinator.State())
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid run configuration", Problems: verr.Problems})
	case errors.Is(err, judge.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.sc.logger().Error("failed to start run", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *apiHandler) getState(w http.ResponseWriter, _ *http.Request) {
	if h.sc.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "run coordinator is not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.sc.Coordinator.State())
}

func (h *apiHandler) removeRunAnswer(w http.ResponseWriter, r *http.Request) {
	if h.sc.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "run coordinator is not configured")
		return
	}
	model, ok := pathParam(w, r, "model")
	if !ok {
		return
	}
	if err := h.sc.Coordinator.RemoveAnswer(r.Context(), model); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.sc.Coordinator.State())
}

func (h *apiHandler) listRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.sc.Records.List(r.Context())
	if err != nil {
		h.sc.logger().Error("failed to list records", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *apiHandler) getRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.sc.Records.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *apiHandler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	records, err := h.sc.Records.Remove(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *apiHandler) removeRecordAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	model, ok := pathParam(w, r, "model")
	if !ok {
		return
	}
	if err := h.sc.Records.RemoveAnswer(r.Context(), id, model); err != nil {
		h.writeStoreError(w, err)
		return
	}
	rec, err := h.sc.Records.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *apiHandler) listModels(w http.ResponseWriter, r *http.Request) {
	if h.sc.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "model catalog is not configured")
		return
	}
	models, err := h.sc.Catalog.Models(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models)
}

func (h *apiHandler) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, record.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.sc.logger().Error("record store request failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "record id must be a positive integer")
		return 0, false
	}
	return id, true
}

// pathParam returns the unescaped URL parameter, so model ids containing
// slashes can be passed as %2F.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || v == "" {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return v, true
}
