// Package handler exposes projects, uploads, exports and live editing
// sessions over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/sanjayabhattarai/katkut.ai/internal/editor"
	"github.com/sanjayabhattarai/katkut.ai/internal/render"
	"github.com/sanjayabhattarai/katkut.ai/internal/service"
	"github.com/sanjayabhattarai/katkut.ai/internal/storage"
	"github.com/sanjayabhattarai/katkut.ai/internal/style"
	"github.com/sanjayabhattarai/katkut.ai/internal/timeline"
	"github.com/sanjayabhattarai/katkut.ai/internal/trim"
	"github.com/sanjayabhattarai/katkut.ai/internal/validation"
	"github.com/sanjayabhattarai/katkut.ai/internal/worker"
)

// UserHeader is injected by the API gateway in production.
const UserHeader = "X-User-ID"

var errMissingUser = errors.New("missing or invalid " + UserHeader + " header")

type Handler struct {
	Projects  *service.ProjectService
	Exports   *service.ExportService
	Sessions  *editor.Registry
	Styles    *style.Catalog
	Generator *timeline.Generator
	Storage   storage.Storage

	MaxUploadBytes int64
	Log            logrus.FieldLogger
}

// Routes registers the API on r under /api/v1, plus /health at the root.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/styles", h.ListStyles).Methods("GET")
	api.HandleFunc("/upload", h.UploadFile).Methods("POST")

	api.HandleFunc("/projects", h.CreateProject).Methods("POST")
	api.HandleFunc("/projects", h.ListProjects).Methods("GET")
	api.HandleFunc("/projects/{id}", h.GetProject).Methods("GET")
	api.HandleFunc("/projects/{id}", h.DeleteProject).Methods("DELETE")
	api.HandleFunc("/projects/{id}/export", h.StartExport).Methods("POST")
	api.HandleFunc("/projects/{id}/export", h.ExportStatus).Methods("GET")
	api.HandleFunc("/projects/{id}/export", h.CancelExport).Methods("DELETE")

	api.HandleFunc("/sessions/{id}", h.OpenSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.SaveSession).Methods("PUT")
	api.HandleFunc("/sessions/{id}", h.CloseSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/select", h.Select).Methods("POST")
	api.HandleFunc("/sessions/{id}/mute", h.ToggleMute).Methods("POST")
	api.HandleFunc("/sessions/{id}/delete", h.DeleteClip).Methods("POST")
	api.HandleFunc("/sessions/{id}/reorder", h.Reorder).Methods("POST")
	api.HandleFunc("/sessions/{id}/undo", h.Undo).Methods("POST")
	api.HandleFunc("/sessions/{id}/redo", h.Redo).Methods("POST")
	api.HandleFunc("/sessions/{id}/play", h.TogglePlay).Methods("POST")
	api.HandleFunc("/sessions/{id}/tick", h.Tick).Methods("POST")
	api.HandleFunc("/sessions/{id}/drag/start", h.DragStart).Methods("POST")
	api.HandleFunc("/sessions/{id}/drag/move", h.DragMove).Methods("POST")
	api.HandleFunc("/sessions/{id}/drag/end", h.DragEnd).Methods("POST")
	api.HandleFunc("/sessions/{id}/drag/cancel", h.DragCancel).Methods("POST")
}

// Health is used by load balancers and liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Projects.DB.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListStyles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Styles.Profiles())
}

func userID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.Header.Get(UserHeader))
	if err != nil {
		return uuid.Nil, errMissingUser
	}
	return id, nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, errBadID
	}
	return id, nil
}

var (
	errBadID       = errors.New("invalid id")
	errBadBody     = errors.New("invalid JSON")
	errMissingBody = errors.New("request body is required")
	errBadRequest  = errors.New("invalid request")
)

// decode reads an optional JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errBadBody
}

// decodeRequired reads the body of a route whose arguments live in it. The
// body must be present and satisfy v's validate tags.
func decodeRequired(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return errMissingBody
	}
	if err != nil {
		return errBadBody
	}
	if err := validation.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", errBadRequest, strings.Join(validation.FormatValidationErrors(err), "; "))
	}
	return nil
}

type errorResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: msg, Errors: details})
}

// fail maps err to a status code. Unexpected errors are logged and hidden
// behind a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.WithError(err).WithField("uri", r.URL.RequestURI()).Error("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var httpErr *render.HTTPError
	switch {
	case errors.Is(err, errMissingUser):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, editor.ErrSessionNotOpen),
		errors.Is(err, service.ErrNoExport):
		return http.StatusNotFound
	case errors.Is(err, errBadID),
		errors.Is(err, errBadBody),
		errors.Is(err, errMissingBody),
		errors.Is(err, errBadRequest),
		errors.Is(err, editor.ErrIndexOutOfRange),
		errors.Is(err, trim.ErrUnknownMode),
		errors.Is(err, trim.ErrTrackWidth),
		errors.Is(err, trim.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, editor.ErrNoDrag),
		errors.Is(err, service.ErrExportInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidTimeline),
		errors.Is(err, editor.ErrEmptyTimeline):
		return http.StatusUnprocessableEntity
	case errors.Is(err, worker.ErrQueueFull),
		errors.Is(err, worker.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.As(err, &httpErr),
		errors.Is(err, render.ErrMalformedResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
