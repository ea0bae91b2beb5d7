package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/sanjayabhattarai/katkut.ai/internal/editor"
	"github.com/sanjayabhattarai/katkut.ai/internal/models"
	"github.com/sanjayabhattarai/katkut.ai/internal/service"
	"github.com/sanjayabhattarai/katkut.ai/internal/trim"
)

// Session routes are keyed by project id. Every response carries the full
// editor state so the client can redraw from it.

type sessionResponse struct {
	State    editor.State      `json:"state"`
	Created  bool              `json:"created,omitempty"`
	Changed  *bool             `json:"changed,omitempty"`
	Rejected bool              `json:"rejected,omitempty"`
	Version  int               `json:"version,omitempty"`
	Window   *models.CutWindow `json:"window,omitempty"`
}

// Argument fields are pointers so a missing value is told apart from zero.
type indexRequest struct {
	Index *int `json:"index" validate:"required"`
}

type reorderRequest struct {
	From *int `json:"from" validate:"required"`
	To   *int `json:"to" validate:"required"`
}

type tickRequest struct {
	CurrentTime *float64 `json:"current_time" validate:"required"`
}

type playRequest struct {
	All *bool `json:"all"`
}

type dragStartRequest struct {
	Mode       string   `json:"mode" validate:"required"`
	Pointer    *float64 `json:"pointer" validate:"required"`
	TrackWidth *float64 `json:"track_width" validate:"required"`
}

type dragMoveRequest struct {
	Pointer *float64 `json:"pointer" validate:"required"`
}

func (h *Handler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	user, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return uuid.Nil, uuid.Nil, false
	}
	return user, id, true
}

// session looks up an open session owned by the caller.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	user, id, ok := h.ids(w, r)
	if !ok {
		return nil, false
	}
	s, err := h.Sessions.Get(id)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	if s.Owner() != user {
		h.fail(w, r, service.ErrUnauthorized)
		return nil, false
	}
	return s, true
}

func changed(b bool) *bool { return &b }

// OpenSession returns the live session for a project, loading it from the
// store on first open.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	p, err := h.Projects.Get(r.Context(), id, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, created, err := h.Sessions.Open(id, user, func() (models.Timeline, error) {
		return p.Timeline, nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if s.Owner() != user {
		h.fail(w, r, service.ErrUnauthorized)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, sessionResponse{State: s.Snapshot(), Created: created})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot()})
}

// SaveSession persists the session's timeline and bumps the project version.
func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	version, err := h.Projects.SaveTimeline(r.Context(), s.ProjectID(), s.Timeline())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s.MarkSaved()
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot(), Version: version})
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.Sessions.Close(s.ProjectID())
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req indexRequest
	if err := decodeRequired(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := s.Select(*req.Index); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot()})
}

func (h *Handler) ToggleMute(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req indexRequest
	if err := decodeRequired(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := s.ToggleMute(*req.Index); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot(), Changed: changed(true)})
}

// DeleteClip removes a window. Deleting the only window is refused with a
// 200 and rejected=true.
func (h *Handler) DeleteClip(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req indexRequest
	if err := decodeRequired(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	deleted, err := s.Delete(*req.Index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot(), Changed: changed(deleted), Rejected: !deleted})
}

func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req reorderRequest
	if err := decodeRequired(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := s.Reorder(*req.From, *req.To); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot(), Changed: changed(*req.From != *req.To)})
}

func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	moved := s.Undo()
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot(), Changed: changed(moved)})
}

func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	moved := s.Redo()
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot(), Changed: changed(moved)})
}

// TogglePlay starts or stops playback. The optional body {"all": false}
// loops the active clip instead of playing the whole timeline.
func (h *Handler) TogglePlay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req playRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	all := req.All == nil || *req.All
	s.TogglePlay(all)
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot()})
}

// Tick reports the playing buffer's current time.
func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req tickRequest
	if err := decodeRequired(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	advanced := s.Tick(*req.CurrentTime)
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot(), Changed: changed(advanced)})
}

func (h *Handler) DragStart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req dragStartRequest
	if err := decodeRequired(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	mode, err := trim.ParseMode(req.Mode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := s.BeginDrag(mode, *req.Pointer, *req.TrackWidth); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot()})
}

func (h *Handler) DragMove(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req dragMoveRequest
	if err := decodeRequired(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	win, err := s.DragTo(*req.Pointer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot(), Window: &win})
}

func (h *Handler) DragEnd(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	committed, err := s.EndDrag()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot(), Changed: changed(committed)})
}

func (h *Handler) DragCancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.CancelDrag()
	writeJSON(w, http.StatusOK, sessionResponse{State: s.Snapshot()})
}
